package errors

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	MaxRetries        = 3
	InitialBackoff    = 100 * time.Millisecond
	MaxBackoff        = 5 * time.Second
	BackoffMultiplier = 2.0
)

// RetryPolicy configures WithRetryPolicy.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// OnRetry, when set, is invoked before every backoff sleep.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultRetryPolicy mirrors the package-level constants.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     MaxRetries,
		InitialBackoff: InitialBackoff,
		MaxBackoff:     MaxBackoff,
		Multiplier:     BackoffMultiplier,
	}
}

func WithRetry(ctx context.Context, fn func() error) error {
	return WithRetryPolicy(ctx, DefaultRetryPolicy(), fn)
}

// WithRetryPolicy runs fn until it succeeds, returns a non-retryable error, or the
// policy's retry ceiling is reached. Sleeping between attempts honors ctx.
func WithRetryPolicy(ctx context.Context, policy RetryPolicy, fn func() error) error {
	if fn == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var err error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn()
		if err == nil {
			return nil
		}

		if !IsRetryable(err) || attempt == policy.MaxRetries {
			return err
		}

		backoff := policy.backoff(attempt + 1)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return err
}

func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Retryable
	}

	return false
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = BackoffMultiplier
	}

	delay := float64(p.InitialBackoff) * math.Pow(multiplier, float64(attempt-1))
	backoff := time.Duration(delay)
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		return p.MaxBackoff
	}

	return backoff
}
