package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Record is anything the stores can persist: it has an immutable id and a
// creation time used for newest-first listings.
type Record interface {
	RecordID() string
	CreatedTime() time.Time
}

// Filter is a field-equality predicate keyed by JSON field names.
// An empty filter matches every record.
type Filter map[string]any

// Fields is a partial update keyed by JSON field names.
type Fields map[string]any

type FindOptions struct {
	SortByCreatedDesc bool
	Limit             int
}

// Store is the Persistence Adapter contract shared by every backend.
// Absent records are reported as nil / false, never as errors.
type Store[T Record] interface {
	// Put is an idempotent upsert keyed by id.
	Put(ctx context.Context, rec T) error
	Get(ctx context.Context, id string) (*T, error)
	GetAll(ctx context.Context, filter Filter, opts FindOptions) ([]T, error)
	// Update merges fields into an existing record; nil when id is unknown.
	Update(ctx context.Context, id string, fields Fields) (*T, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteMany(ctx context.Context, filter Filter) (int64, error)
}

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Incrementer is implemented by stores with a native atomic counter.
type Incrementer[T Record] interface {
	Increment(ctx context.Context, id, field string, delta int) (*T, error)
}

var ErrUnavailable = errors.New("store unavailable")

// UnavailableError is returned once retries for an operation are exhausted.
type UnavailableError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }
