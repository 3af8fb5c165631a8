package scrape

import "errors"

// Error kinds, coarsest useful granularity. Callers branch on these with
// errors.Is; everything else wraps one of them.
var (
	// ErrSession means a browsing session could not be established or
	// refreshed after exhausting attempts. Fatal for the source until a
	// later operation succeeds in bootstrapping again.
	ErrSession = errors.New("could not establish session")

	// ErrTransient is a single-attempt network or HTTP failure. Retried
	// locally inside the orchestrator and never surfaced past it unless
	// the attempt ceiling is exhausted.
	ErrTransient = errors.New("transient fetch failure")

	// ErrParse means a response arrived but matched no recognized shape.
	ErrParse = errors.New("unrecognized response")

	// ErrValidation flags bad caller input, rejected before any network
	// call is made.
	ErrValidation = errors.New("invalid request")

	// ErrNoData marks a fetch that completed cleanly but yielded no rows
	// inside the requested window.
	ErrNoData = errors.New("no rows in requested window")
)

func IsSessionError(err error) bool    { return errors.Is(err, ErrSession) }
func IsTransientError(err error) bool  { return errors.Is(err, ErrTransient) }
func IsParseError(err error) bool      { return errors.Is(err, ErrParse) }
func IsValidationError(err error) bool { return errors.Is(err, ErrValidation) }
func IsNoDataError(err error) bool     { return errors.Is(err, ErrNoData) }
