// Package jobs is the batch orchestration layer: it runs the fetch-all and
// analyze-all jobs, enforces the single-running-job invariant, paces external
// calls and applies the per-failure-class retry schedule.
package jobs

import (
	"context"
	"time"

	"riskradar/internal/config"
	"riskradar/internal/util"
)

// Policy is the per-item retry schedule. Each failure class has its own
// treatment:
//
//	transient   — up to MaxAttempts, exponential backoff capped at MaxDelay
//	rate limit  — up to MaxAttempts, fixed cooldown between attempts
//	not found   — terminal immediately, the item can never succeed
//	malformed   — one immediate retry, then terminal
//	unknown     — terminal immediately
type Policy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	RateLimitCooldown time.Duration

	// Sleep is replaced in tests to observe delays without waiting them out.
	Sleep func(ctx context.Context, d time.Duration) error
}

func PolicyFromConfig(cfg config.Config) Policy {
	return Policy{
		MaxAttempts:       cfg.MaxAttempts,
		BaseDelay:         time.Duration(cfg.RetryBaseDelaySecs) * time.Second,
		MaxDelay:          time.Duration(cfg.RetryMaxDelaySecs) * time.Second,
		RateLimitCooldown: time.Duration(cfg.RateLimitCooldownSecs) * time.Second,
	}
}

// Execute runs op until it succeeds or its failure class exhausts the
// schedule. The last error is returned unchanged so callers can still
// classify it.
func (p Policy) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	// attempt counts transient and rate-limited failures only; the single
	// malformed retry does not consume the budget or advance the backoff.
	attempt := 0
	malformedRetried := false
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}

		switch util.Classify(err) {
		case util.KindMalformed:
			if malformedRetried {
				return err
			}
			malformedRetried = true

		case util.KindTransient:
			attempt++
			if attempt >= p.MaxAttempts {
				return err
			}
			if serr := sleep(ctx, p.backoff(attempt)); serr != nil {
				return err
			}

		case util.KindRateLimited:
			attempt++
			if attempt >= p.MaxAttempts {
				return err
			}
			if serr := sleep(ctx, p.RateLimitCooldown); serr != nil {
				return err
			}

		default: // not found, unknown
			return err
		}
	}
}

// backoff doubles the base delay per failed attempt, capped at MaxDelay.
func (p Policy) backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
