package scrape

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceKind names one of the fixed upstream data sources.
type SourceKind string

const (
	SourceBSE       SourceKind = "bse"
	SourceNSE       SourceKind = "nse"
	SourceInvesting SourceKind = "investing"
	SourceYahoo     SourceKind = "yahoo"
)

// Kinds lists every supported source in display order.
func Kinds() []SourceKind {
	return []SourceKind{SourceNSE, SourceBSE, SourceYahoo, SourceInvesting}
}

// Instrument identifies a tradable security on one source. Identity is
// per-source only: the same company listed on two sources is two distinct
// Instruments, and no cross-source resolution is attempted.
type Instrument struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Symbol      string `json:"symbol"`
	Exchange    string `json:"exchange"`
	Type        string `json:"type"`
	ISIN        string `json:"isin,omitempty"`
}

// Label returns the best display name for the instrument: the trading
// symbol when present, otherwise the description, otherwise the raw id.
func (i Instrument) Label() string {
	switch {
	case i.Symbol != "":
		return i.Symbol
	case i.Description != "":
		return i.Description
	default:
		return i.ID
	}
}

// HistoricalRecord is one row of a daily price series. Price fields are
// nil when the source reported a missing value; volume follows the
// dash-means-zero convention the exchanges use.
type HistoricalRecord struct {
	Date         time.Time
	Open         *decimal.Decimal
	High         *decimal.Decimal
	Low          *decimal.Decimal
	Close        *decimal.Decimal
	Volume       int64
	Symbol       string
	InstrumentID string
}

// FetchResult is the terminal outcome of one instrument's fetch. Either
// Records holds the date-ascending series clamped to the requested range,
// or Err carries the failure; the instrument identity survives both ways.
type FetchResult struct {
	Instrument Instrument
	Records    []HistoricalRecord
	Err        error
}

// OK reports whether the fetch produced a usable series.
func (r FetchResult) OK() bool {
	return r.Err == nil
}
