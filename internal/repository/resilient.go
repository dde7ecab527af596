package repository

import (
	"context"
	"errors"
)

var ErrNotSupported = errors.New("operation not supported by store")

// Resilient decorates a Store so that every call is bounded by a timeout and
// retried with backoff. Ping and Increment are forwarded when the wrapped
// store supports them.
type Resilient[T Record] struct {
	inner  Store[T]
	policy RetryPolicy
	name   string
}

func NewResilient[T Record](name string, inner Store[T], policy RetryPolicy) *Resilient[T] {
	return &Resilient[T]{inner: inner, policy: policy, name: name}
}

func (r *Resilient[T]) Unwrap() Store[T] { return r.inner }

func (r *Resilient[T]) op(name string) string { return r.name + "." + name }

func (r *Resilient[T]) Put(ctx context.Context, rec T) error {
	_, err := WithRetry(ctx, r.policy, r.op("put"), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.inner.Put(ctx, rec)
	})
	return err
}

func (r *Resilient[T]) Get(ctx context.Context, id string) (*T, error) {
	return WithRetry(ctx, r.policy, r.op("get"), func(ctx context.Context) (*T, error) {
		return r.inner.Get(ctx, id)
	})
}

func (r *Resilient[T]) GetAll(ctx context.Context, filter Filter, opts FindOptions) ([]T, error) {
	return WithRetry(ctx, r.policy, r.op("getAll"), func(ctx context.Context) ([]T, error) {
		return r.inner.GetAll(ctx, filter, opts)
	})
}

func (r *Resilient[T]) Update(ctx context.Context, id string, fields Fields) (*T, error) {
	return WithRetry(ctx, r.policy, r.op("update"), func(ctx context.Context) (*T, error) {
		return r.inner.Update(ctx, id, fields)
	})
}

func (r *Resilient[T]) Delete(ctx context.Context, id string) (bool, error) {
	return WithRetry(ctx, r.policy, r.op("delete"), func(ctx context.Context) (bool, error) {
		return r.inner.Delete(ctx, id)
	})
}

func (r *Resilient[T]) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	return WithRetry(ctx, r.policy, r.op("deleteMany"), func(ctx context.Context) (int64, error) {
		return r.inner.DeleteMany(ctx, filter)
	})
}

// Ping is a single bounded attempt; connectivity checks should not back off.
func (r *Resilient[T]) Ping(ctx context.Context) error {
	p, ok := r.inner.(Pinger)
	if !ok {
		return nil
	}
	_, err := WithTimeout(ctx, r.policy.Timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.Ping(ctx)
	})
	return err
}

// Increment is attempted once: a timed out increment may still have been
// applied, and retrying it would count the scan twice. It returns
// ErrNotSupported when the wrapped store has no atomic counter.
func (r *Resilient[T]) Increment(ctx context.Context, id, field string, delta int) (*T, error) {
	inc, ok := r.inner.(Incrementer[T])
	if !ok {
		return nil, ErrNotSupported
	}
	rec, err := WithTimeout(ctx, r.policy.Timeout, func(ctx context.Context) (*T, error) {
		return inc.Increment(ctx, id, field, delta)
	})
	if err != nil {
		return nil, &UnavailableError{Op: r.op("increment"), Attempts: 1, Err: err}
	}
	return rec, nil
}
