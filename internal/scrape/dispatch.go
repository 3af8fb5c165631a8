package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Dispatcher fans instrument fetches out across a bounded worker pool.
// Workers share only the source's session manager; everything else is
// per-worker. The pool always drains completely: one failing instrument
// never truncates the batch.
type Dispatcher struct {
	Workers int
	Log     zerolog.Logger
}

// DispatchAll fetches every instrument's history against one source and
// returns exactly one FetchResult per input instrument, in input order.
// Failures (including panics inside a worker) become failure results
// carrying the instrument identity; they are never dropped. A completed
// fetch with zero rows in the window is reported as a failure too, so the
// caller can tell the instrument apart from one that simply was not
// requested.
func (d *Dispatcher) DispatchAll(ctx context.Context, src Source, instruments []Instrument, start, end time.Time) []FetchResult {
	results := make([]FetchResult, len(instruments))
	workers := d.Workers
	if workers < 1 {
		workers = 1
	}

	g := &errgroup.Group{}
	g.SetLimit(workers)
	for i, inst := range instruments {
		i, inst := i, inst
		g.Go(func() error {
			results[i] = d.fetchOne(ctx, src, inst, start, end)
			return nil
		})
	}
	// Workers only ever return nil; Wait is a barrier, not an error gate.
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	d.Log.Info().
		Str("source", string(src.Kind())).
		Int("instruments", len(instruments)).
		Int("failed", failed).
		Msg("batch complete")
	return results
}

func (d *Dispatcher) fetchOne(ctx context.Context, src Source, inst Instrument, start, end time.Time) (res FetchResult) {
	res = FetchResult{Instrument: inst}
	defer func() {
		if r := recover(); r != nil {
			res.Records = nil
			res.Err = fmt.Errorf("worker panic: %v", r)
			d.Log.Error().Str("id", inst.ID).Interface("panic", r).Msg("fetch worker panicked")
		}
	}()

	records, err := src.FetchHistory(ctx, inst, start, end)
	if err != nil {
		d.Log.Warn().Err(err).Str("id", inst.ID).Msg("instrument fetch failed")
		res.Err = err
		return res
	}
	if len(records) == 0 {
		res.Err = fmt.Errorf("%w: %s", ErrNoData, inst.Label())
		return res
	}
	res.Records = records
	return res
}
