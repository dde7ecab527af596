package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/logger"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/storage"
)

// Fixed blob keys of the persisted local state.
const (
	QRCodesKey  = "qrCodes_v2"
	FeedbackKey = "feedbackItems"
	PendingKey  = "pendingQRCodes"
)

// Layout selects how a LocalStore serialises its collection.
type Layout int

const (
	// LayoutMap stores a JSON object from id to record.
	LayoutMap Layout = iota
	// LayoutList stores a JSON array of records.
	LayoutList
)

// LocalStore keeps a whole collection in a single JSON blob. It is the
// offline copy of records and never the system of record.
type LocalStore[T Record] struct {
	blobs  storage.Blobs
	key    string
	layout Layout

	mu sync.Mutex
}

func NewLocalStore[T Record](blobs storage.Blobs, key string, layout Layout) *LocalStore[T] {
	return &LocalStore[T]{blobs: blobs, key: key, layout: layout}
}

func (s *LocalStore[T]) load(ctx context.Context) (map[string]T, error) {
	data, err := s.blobs.Read(ctx, s.key)
	if errors.Is(err, storage.ErrBlobNotFound) {
		return make(map[string]T), nil
	}
	if err != nil {
		return nil, err
	}

	records := make(map[string]T)
	switch s.layout {
	case LayoutMap:
		err = json.Unmarshal(data, &records)
	case LayoutList:
		var list []T
		if err = json.Unmarshal(data, &list); err == nil {
			for _, rec := range list {
				records[rec.RecordID()] = rec
			}
		}
	}
	if err != nil {
		logger.WithFields(logger.Fields{"key": s.key}).Warnf("discarding corrupted local data: %v", err)
		if rmErr := s.blobs.Remove(ctx, s.key); rmErr != nil {
			logger.Errorf("failed to remove corrupted local data %s: %v", s.key, rmErr)
		}
		return make(map[string]T), nil
	}
	if records == nil {
		records = make(map[string]T)
	}
	return records, nil
}

func (s *LocalStore[T]) save(ctx context.Context, records map[string]T) error {
	var (
		data []byte
		err  error
	)
	switch s.layout {
	case LayoutMap:
		data, err = json.Marshal(records)
	case LayoutList:
		list := make([]T, 0, len(records))
		for _, rec := range records {
			list = append(list, rec)
		}
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].CreatedTime().Before(list[j].CreatedTime())
		})
		data, err = json.Marshal(list)
	}
	if err != nil {
		return err
	}
	return s.blobs.Write(ctx, s.key, data)
}

func (s *LocalStore[T]) Put(ctx context.Context, rec T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return err
	}
	records[rec.RecordID()] = rec
	return s.save(ctx, records)
}

func (s *LocalStore[T]) Get(ctx context.Context, id string) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *LocalStore[T]) GetAll(ctx context.Context, filter Filter, opts FindOptions) ([]T, error) {
	m, err := newMatcher(filter)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	records, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(records))
	for _, rec := range records {
		ok, err := m.match(rec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return applyOptions(out, opts), nil
}

func (s *LocalStore[T]) Update(ctx context.Context, id string, fields Fields) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := records[id]
	if !ok {
		return nil, nil
	}
	updated, err := merge(rec, fields)
	if err != nil {
		return nil, err
	}
	records[id] = updated
	if err := s.save(ctx, records); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *LocalStore[T]) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := records[id]; !ok {
		return false, nil
	}
	delete(records, id)
	return true, s.save(ctx, records)
}

func (s *LocalStore[T]) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	m, err := newMatcher(filter)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for id, rec := range records {
		ok, err := m.match(rec)
		if err != nil {
			return 0, err
		}
		if ok {
			delete(records, id)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.save(ctx, records)
}
