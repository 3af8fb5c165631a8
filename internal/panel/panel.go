// Package panel reconciles per-instrument price series into one aligned,
// date-indexed table. Alignment is an outer join: the date axis is the
// union of every instrument's trading calendar and a date an instrument
// did not trade on stays null for it. No forward-fill, no interpolation;
// inventing price data is not this package's job or anyone else's.
package panel

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vslabs/scripscrapo/internal/scrape"
)

// Cell is one instrument's values on one date. Nil pointers mean the
// instrument has no row for that date.
type Cell struct {
	Close  *decimal.Decimal
	Volume *int64
}

// ColumnGroup is one instrument's close/volume series laid out along the
// panel's shared date axis.
type ColumnGroup struct {
	Instrument scrape.Instrument
	Cells      []Cell
}

// Panel is the reconciled output table: ascending union of all trading
// dates, one column group per successfully fetched instrument.
type Panel struct {
	Dates   []time.Time
	Columns []ColumnGroup
}

// Empty reports whether the panel carries no instruments at all.
func (p *Panel) Empty() bool {
	return len(p.Columns) == 0
}

// Failure pairs an instrument with the terminal error its fetch ended in.
type Failure struct {
	Instrument scrape.Instrument
	Err        error
}

// Reconcile merges the successful results into a Panel and reports the
// failures separately. Failed instruments never contribute columns; an
// empty-but-successful batch yields a panel with no columns, not an error.
func Reconcile(results []scrape.FetchResult) (*Panel, []Failure) {
	var failures []Failure
	var ok []scrape.FetchResult
	for _, r := range results {
		if r.OK() {
			ok = append(ok, r)
			continue
		}
		failures = append(failures, Failure{Instrument: r.Instrument, Err: r.Err})
	}

	dateSet := make(map[time.Time]struct{})
	for _, r := range ok {
		for _, rec := range r.Records {
			dateSet[rec.Date] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	index := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		index[d] = i
	}

	columns := make([]ColumnGroup, 0, len(ok))
	for _, r := range ok {
		cells := make([]Cell, len(dates))
		for _, rec := range r.Records {
			i := index[rec.Date]
			vol := rec.Volume
			cells[i] = Cell{Close: rec.Close, Volume: &vol}
		}
		columns = append(columns, ColumnGroup{Instrument: r.Instrument, Cells: cells})
	}

	return &Panel{Dates: dates, Columns: columns}, failures
}
