package repository

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps records in process memory.
type MemoryStore[T Record] struct {
	mu      sync.RWMutex
	records map[string]T
}

func NewMemoryStore[T Record]() *MemoryStore[T] {
	return &MemoryStore[T]{records: make(map[string]T)}
}

func (s *MemoryStore[T]) Put(_ context.Context, rec T) error {
	c, err := clone(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.records[rec.RecordID()] = c
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore[T]) Get(_ context.Context, id string) (*T, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	c, err := clone(rec)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MemoryStore[T]) GetAll(_ context.Context, filter Filter, opts FindOptions) ([]T, error) {
	m, err := newMatcher(filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, 0, len(s.records))
	for _, rec := range s.records {
		ok, err := m.match(rec)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		c, err := clone(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return applyOptions(out, opts), nil
}

func (s *MemoryStore[T]) Update(_ context.Context, id string, fields Fields) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	updated, err := merge(rec, fields)
	if err != nil {
		return nil, err
	}
	s.records[id] = updated
	c, err := clone(updated)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MemoryStore[T]) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	return true, nil
}

func (s *MemoryStore[T]) DeleteMany(_ context.Context, filter Filter) (int64, error) {
	m, err := newMatcher(filter)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rec := range s.records {
		ok, err := m.match(rec)
		if err != nil {
			return n, err
		}
		if ok {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Increment adds delta to an integer field under the store lock.
func (s *MemoryStore[T]) Increment(_ context.Context, id, field string, delta int) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	doc, err := toDocument(rec)
	if err != nil {
		return nil, err
	}
	current, ok := doc[field].(float64)
	if !ok && doc[field] != nil {
		return nil, fmt.Errorf("field %s is not numeric", field)
	}
	updated, err := merge(rec, Fields{field: int(current) + delta})
	if err != nil {
		return nil, err
	}
	s.records[id] = updated
	c, err := clone(updated)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MemoryStore[T]) Ping(context.Context) error { return nil }
