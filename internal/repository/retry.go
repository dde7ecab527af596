package repository

import (
	"context"
	"errors"
	"time"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/domain"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/logger"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/storage"
)

// RetryPolicy bounds how often and how patiently an operation is retried.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	Factor    float64
	// Timeout bounds every single attempt. Zero means no per-attempt timeout.
	Timeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		BaseDelay: time.Second,
		Factor:    2,
		Timeout:   15 * time.Second,
	}
}

// Delay returns the wait before retry number n (n starts at 1).
func (p RetryPolicy) Delay(n int) time.Duration {
	d := p.BaseDelay
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	for i := 1; i < n; i++ {
		d = time.Duration(float64(d) * factor)
	}
	return d
}

// WithTimeout runs fn under a deadline derived from ctx.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// WithRetry runs fn up to p.Attempts times with exponential backoff between
// attempts. Permanent errors are returned immediately; transient ones are
// wrapped in an *UnavailableError once attempts run out.
func WithRetry[T any](ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := WithTimeout(ctx, p.Timeout, fn)
		if err == nil {
			return res, nil
		}
		if permanent(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, &UnavailableError{Op: op, Attempts: attempt, Err: err}
		}
		lastErr = err

		logger.WithFields(logger.Fields{"op": op, "attempt": attempt, "of": attempts}).
			Warnf("store operation failed: %v", err)

		if attempt == attempts {
			break
		}

		t := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, &UnavailableError{Op: op, Attempts: attempt, Err: ctx.Err()}
		case <-t.C:
		}
	}

	return zero, &UnavailableError{Op: op, Attempts: attempts, Err: lastErr}
}

func permanent(err error) bool {
	var fe *FacadeError
	if errors.As(err, &fe) && !fe.Temporary() {
		return true
	}
	return errors.Is(err, storage.ErrQuotaExceeded) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, ErrNotSupported) ||
		errors.Is(err, context.Canceled)
}
