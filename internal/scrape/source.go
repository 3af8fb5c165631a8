// Package scrape implements the multi-source fetch core: per-source
// session and cookie lifecycle, anti-blocking identity rotation, retrying
// orchestration of historical-data requests, heterogeneous response
// parsing and concurrent batch dispatch.
package scrape

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vslabs/scripscrapo/internal/config"
)

// Source is one upstream data provider. The set is closed: BSE, NSE,
// Investing.com and Yahoo Finance. Response shapes are not
// interchangeable, so callers dispatch by explicit kind, never by
// structural guessing.
type Source interface {
	Kind() SourceKind

	// Search resolves a free-text query to instruments. No matches is an
	// empty slice, not an error.
	Search(ctx context.Context, query string) ([]Instrument, error)

	// FetchHistory returns the instrument's daily series clamped to
	// [start, end] inclusive, ascending by date.
	FetchHistory(ctx context.Context, inst Instrument, start, end time.Time) ([]HistoricalRecord, error)
}

// NewRegistry builds the closed source set from configuration. All
// clients share one locked random source so identity draws stay
// independent across workers without package-level state.
func NewRegistry(cfg *config.Config, log zerolog.Logger) map[SourceKind]Source {
	r := newLockedRand(time.Now().UnixNano())
	return map[SourceKind]Source{
		SourceBSE:       NewBSEClient(cfg, r, log),
		SourceNSE:       NewNSEClient(cfg, r, log),
		SourceInvesting: NewInvestingClient(cfg, r, log),
		SourceYahoo:     NewYahooClient(cfg, r, log),
	}
}

// validateFetch rejects bad caller input before any network traffic.
func validateFetch(inst Instrument, start, end time.Time) error {
	if strings.TrimSpace(inst.ID) == "" {
		return fmt.Errorf("%w: empty instrument id", ErrValidation)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: start date %s after end date %s",
			ErrValidation, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return nil
}

func policyFrom(cfg *config.Config) RetryPolicy {
	return RetryPolicy{Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// dumpDebug saves a raw response body for offline diagnosis. Purely an
// opt-in hook: with no debug directory configured nothing touches disk.
func dumpDebug(dir, name string, body []byte, log zerolog.Logger) {
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Err(err).Msg("debug dir unavailable")
		return
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("debug dump failed")
		return
	}
	log.Info().Str("path", path).Msg("raw response saved for diagnosis")
}
