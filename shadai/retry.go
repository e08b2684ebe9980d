// Copyright (c) Microsoft. All rights reserved.

package shadai

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig holds configuration for [Retry].
type RetryConfig struct {
	MaxAttempts       int           // total attempts, including the first
	InitialBackoff    time.Duration // wait before the second attempt
	MaxBackoff        time.Duration // cap on a single wait
	BackoffMultiplier float64       // growth factor between waits
	Jitter            bool          // randomize each wait by up to 25%
}

// DefaultRetryConfig returns a default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Retry calls fn until it succeeds, fails with an error that is not
// retriable (see [IsRetriable]), runs out of attempts, or ctx ends. The last
// error is returned unchanged.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = cfg.MaxBackoff
	b.Multiplier = cfg.BackoffMultiplier
	b.RandomizationFactor = 0
	if cfg.Jitter {
		b.RandomizationFactor = 0.25
	}

	v, err := backoff.Retry(ctx, func() (T, error) {
		v, err := fn(ctx)
		if err != nil && !IsRetriable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	return v, err
}
