package connection

import (
	"context"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"

	"github.com/iristech-systems/quantumgo/qerr"
)

// Retryable reports whether an operation failed in a way worth retrying.
// Only transport-level failures and pool acquire timeouts are retried;
// validation, conflict, and not-found errors are never idempotent-safe to
// retry.
func Retryable(err error) bool {
	return qerr.IsKind(err, qerr.Transport) || qerr.IsKind(err, qerr.AcquireTimeout)
}

// WithRetry runs op up to cfg.Attempts times, backing off between attempts
// by BaseDelay * BackoffFactor^attempt capped at MaxDelay, per spec §4.4:
// retry is a caller-level concern layered on top of the pool, applied only
// to idempotent operations.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, logger logr.Logger, op func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseDelay
	b.Multiplier = cfg.BackoffFactor
	b.MaxInterval = cfg.MaxDelay
	b.RandomizationFactor = 0

	result, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && !Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxInt(cfg.Attempts, 1))),
	)
	if err != nil {
		logger.V(1).Info("retry exhausted", "attempts", cfg.Attempts, "error", err)
	}
	return result, err
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
