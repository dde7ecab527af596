package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/cache"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/domain"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/repository"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/storage"
)

var errNetwork = errors.New("network unreachable")

// flakyStore fails every call while down.
type flakyStore[T repository.Record] struct {
	inner repository.Store[T]
	down  atomic.Bool
}

func newFlaky[T repository.Record](inner repository.Store[T]) *flakyStore[T] {
	return &flakyStore[T]{inner: inner}
}

func (f *flakyStore[T]) check() error {
	if f.down.Load() {
		return errNetwork
	}
	return nil
}

func (f *flakyStore[T]) Put(ctx context.Context, rec T) error {
	if err := f.check(); err != nil {
		return err
	}
	return f.inner.Put(ctx, rec)
}

func (f *flakyStore[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.inner.Get(ctx, id)
}

func (f *flakyStore[T]) GetAll(ctx context.Context, filter repository.Filter, opts repository.FindOptions) ([]T, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.inner.GetAll(ctx, filter, opts)
}

func (f *flakyStore[T]) Update(ctx context.Context, id string, fields repository.Fields) (*T, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.inner.Update(ctx, id, fields)
}

func (f *flakyStore[T]) Delete(ctx context.Context, id string) (bool, error) {
	if err := f.check(); err != nil {
		return false, err
	}
	return f.inner.Delete(ctx, id)
}

func (f *flakyStore[T]) DeleteMany(ctx context.Context, filter repository.Filter) (int64, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	return f.inner.DeleteMany(ctx, filter)
}

func (f *flakyStore[T]) Increment(ctx context.Context, id, field string, delta int) (*T, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	inc, ok := f.inner.(repository.Incrementer[T])
	if !ok {
		return nil, repository.ErrNotSupported
	}
	return inc.Increment(ctx, id, field, delta)
}

func (f *flakyStore[T]) Ping(context.Context) error { return f.check() }

// gatedStore holds Put calls while armed until release is called.
type gatedStore[T repository.Record] struct {
	repository.Store[T]
	armed   atomic.Bool
	entered chan struct{}
	gate    chan struct{}
}

func newGated[T repository.Record](inner repository.Store[T]) *gatedStore[T] {
	return &gatedStore[T]{Store: inner, entered: make(chan struct{}, 1), gate: make(chan struct{})}
}

func (g *gatedStore[T]) arm() { g.armed.Store(true) }

func (g *gatedStore[T]) release() {
	g.armed.Store(false)
	close(g.gate)
}

func (g *gatedStore[T]) Put(ctx context.Context, rec T) error {
	if g.armed.Load() {
		select {
		case g.entered <- struct{}{}:
		default:
		}
		select {
		case <-g.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return g.Store.Put(ctx, rec)
}

func fastPolicy() repository.RetryPolicy {
	return repository.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, Factor: 2, Timeout: time.Second}
}

type harness struct {
	remote     *flakyStore[domain.QRCode]
	remoteData repository.Store[domain.QRCode]
	local      *repository.LocalStore[domain.QRCode]
	feedback   *flakyStore[domain.Feedback]
	blobs      *storage.MemoryBlobs
	cache      *cache.Cache[domain.QRCode]
	monitor    *ConnectivityMonitor
	sync       *SyncService
	qrcodes    *QRCodeService
	feedbacks  *FeedbackService
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, repository.NewMemoryStore[domain.QRCode](), storage.NewMemoryBlobs(0))
}

func newHarnessWith(t *testing.T, remoteData repository.Store[domain.QRCode], blobs *storage.MemoryBlobs) *harness {
	t.Helper()
	ctx := context.Background()

	h := &harness{
		remote:     newFlaky(remoteData),
		remoteData: remoteData,
		local:      repository.NewLocalStore[domain.QRCode](blobs, repository.QRCodesKey, repository.LayoutMap),
		feedback:   newFlaky[domain.Feedback](repository.NewMemoryStore[domain.Feedback]()),
		blobs:      blobs,
		cache:      cache.New[domain.QRCode](cache.DefaultTTL),
	}
	remote := repository.NewResilient[domain.QRCode]("qrCodes", h.remote, fastPolicy())
	feedback := repository.NewResilient[domain.Feedback]("feedback", h.feedback, fastPolicy())

	h.monitor = NewConnectivityMonitor(remote, time.Hour)
	var err error
	h.sync, err = NewSyncService(ctx, h.local, remote, blobs, h.cache, h.monitor, SyncConfig{Interval: time.Hour})
	require.NoError(t, err)

	h.qrcodes = NewQRCodeService(remote, h.local, feedback, h.sync, h.cache, "https://feedback.example.com/")
	h.feedbacks = NewFeedbackService(feedback, h.qrcodes, nil)
	return h
}

func (h *harness) generate(t *testing.T, label string, expiryHours, maxScans int) domain.QRCode {
	t.Helper()
	qr, err := h.qrcodes.Generate(label, expiryHours, maxScans)
	require.NoError(t, err)
	require.NoError(t, h.qrcodes.Store(context.Background(), qr))
	return qr
}

func validInput(rating int) SubmitInput {
	return SubmitInput{
		Name:        "Asha",
		PhoneNumber: "+91 98765 43210",
		Rating:      rating,
		Comment:     "Lovely evening",
	}
}
