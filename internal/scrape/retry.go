package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy is the fixed-ceiling, fixed-backoff retry loop the upstream
// endpoints tolerate. Exponential backoff buys nothing here: the sites
// either recover within seconds or have blocked the client outright.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// withRetry runs fn up to the attempt ceiling, sleeping the fixed backoff
// between attempts. Session, validation and parse failures end the loop
// immediately: a dead session is fatal for the operation, bad input never
// heals, and an unrecognized payload shape will not change on replay.
func withRetry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.Backoff):
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrSession) || errors.Is(err, ErrValidation) || errors.Is(err, ErrParse) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

// sleepJitter pauses a uniform random interval inside [min, max] before a
// network call. Burst-pattern spacing is the cheapest request signal the
// upstream bot detection keys on.
func sleepJitter(ctx context.Context, r rng, min, max time.Duration) error {
	d := jitterDuration(r, min, max)
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// jitterDuration computes the delay sleepJitter would use; split out so the
// bounds are testable without sleeping.
func jitterDuration(r rng, min, max time.Duration) time.Duration {
	if max < min {
		min, max = max, min
	}
	d := min
	if span := max - min; span > 0 {
		d += time.Duration(r.Float64() * float64(span))
	}
	return d
}
