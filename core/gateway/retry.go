package gateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	errs "subsidy-recon/internal/errors"
)

// call runs fetch with the quota retry policy: quota failures are retried up
// to MaxRetries times with capped exponential backoff and jitter, anything
// else fails on the first attempt.
func (g *Gateway) call(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	op := func() (any, error) {
		v, err := g.attempt(ctx, fetch)
		if err == nil {
			return v, nil
		}
		if errs.IsQuotaExceeded(err) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		g.retries.Add(1)
		g.logger.Debug("upstream quota exceeded, backing off",
			zap.String("key", key),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(g.newBackOff()),
		backoff.WithMaxTries(uint(g.cfg.MaxRetries)+1),
		backoff.WithNotify(notify))
}

func (g *Gateway) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.cfg.BackoffBase
	b.Multiplier = 2
	b.RandomizationFactor = g.cfg.Jitter
	b.MaxInterval = g.cfg.BackoffMax
	return b
}

// attempt is one raw upstream call. It waits for a concurrency slot and for
// the minimum spacing since the previous raw call, then runs fetch under its
// own deadline.
func (g *Gateway) attempt(ctx context.Context, fetch func(context.Context) (any, error)) (any, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.sem.Release(1)

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		peak := g.peakInFlight.Load()
		if n <= peak || g.peakInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	g.rawCalls.Add(1)

	callCtx := ctx
	if g.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.CallTimeout)
		defer cancel()
	}

	v, err := fetch(callCtx)
	if err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return nil, errs.Transient("upstream call timed out", err)
	}
	return v, err
}

// RetryImmediate runs op up to attempts times with no delay between tries,
// retrying only transient network errors.
func RetryImmediate[T any](ctx context.Context, attempts int, op func() (T, error)) (T, error) {
	if attempts < 1 {
		attempts = 1
	}
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !errs.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(&backoff.ZeroBackOff{}),
		backoff.WithMaxTries(uint(attempts)))
}
