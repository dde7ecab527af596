package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/cache"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/domain"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/logger"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/repository"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/storage"
)

const (
	DefaultExpiryHours = 24
	DefaultMaxScans    = 100
)

// QRCodeService owns the lifecycle of QR codes. Every write lands in the
// local copy first and is then replicated to the remote store; reads go
// cache, remote, local.
type QRCodeService struct {
	remote   repository.Store[domain.QRCode]
	local    repository.Store[domain.QRCode]
	feedback repository.Store[domain.Feedback]
	sync     *SyncService
	cache    *cache.Cache[domain.QRCode]
	baseURL  string

	now   func() time.Time
	newID func() string
}

func NewQRCodeService(
	remote, local repository.Store[domain.QRCode],
	feedback repository.Store[domain.Feedback],
	sync *SyncService,
	cache *cache.Cache[domain.QRCode],
	baseURL string,
) *QRCodeService {
	return &QRCodeService{
		remote:   remote,
		local:    local,
		feedback: feedback,
		sync:     sync,
		cache:    cache,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock replaces the time source, for tests.
func (s *QRCodeService) WithClock(now func() time.Time) *QRCodeService {
	s.now = now
	return s
}

func (s *QRCodeService) Now() time.Time { return s.now().UTC() }

// Generate builds a new active record. It does not persist it.
func (s *QRCodeService) Generate(label string, expiryHours, maxScans int) (domain.QRCode, error) {
	if strings.TrimSpace(label) == "" {
		return domain.QRCode{}, &domain.ValidationError{Field: "context", Message: "must not be empty"}
	}
	if expiryHours <= 0 {
		return domain.QRCode{}, &domain.ValidationError{Field: "expiryHours", Message: "must be positive"}
	}
	if maxScans < 1 {
		return domain.QRCode{}, &domain.ValidationError{Field: "maxScans", Message: "must be at least 1"}
	}

	now := s.Now().Truncate(time.Millisecond)
	return domain.QRCode{
		ID:           s.newID(),
		Context:      strings.TrimSpace(label),
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Duration(expiryHours) * time.Hour),
		MaxScans:     maxScans,
		CurrentScans: 0,
		IsActive:     true,
	}, nil
}

// Store persists rec locally, then remotely. A failed remote write leaves
// the record pending rather than failing the call.
func (s *QRCodeService) Store(ctx context.Context, rec domain.QRCode) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	unlock := s.sync.locks.Lock(rec.ID)
	defer unlock()
	return s.storeLocked(ctx, rec)
}

func (s *QRCodeService) storeLocked(ctx context.Context, rec domain.QRCode) error {
	log := logger.WithFields(logger.Fields{"qr_code_id": rec.ID})

	if err := s.local.Put(ctx, rec); err != nil {
		return err
	}
	s.cache.Invalidate(rec.ID)
	// Reads that started before the remote write may still hold the old record.
	defer s.cache.Invalidate(rec.ID)

	if !s.sync.Online() {
		return s.markPending(ctx, rec.ID)
	}
	if err := s.remote.Put(ctx, rec); err != nil {
		log.Warnf("remote write failed, will retry in background: %v", err)
		return s.markPending(ctx, rec.ID)
	}
	if s.sync.IsPending(rec.ID) {
		if err := s.sync.Forget(ctx, rec.ID); err != nil {
			log.Errorf("persisting pending set failed: %v", err)
		}
	}
	return nil
}

func (s *QRCodeService) markPending(ctx context.Context, id string) error {
	if err := s.sync.RecordPendingWrite(ctx, id); err != nil {
		if errors.Is(err, storage.ErrQuotaExceeded) {
			return err
		}
		logger.WithFields(logger.Fields{"qr_code_id": id}).Errorf("persisting pending set failed: %v", err)
	}
	return nil
}

// Get returns the record or nil when no source knows it. An error means the
// remote store failed and the local copy could not stand in.
func (s *QRCodeService) Get(ctx context.Context, id string) (*domain.QRCode, error) {
	if rec, ok := s.cache.Get(id); ok {
		return &rec, nil
	}

	gen := s.cache.Generation()
	rec, localOnly, err := s.current(ctx, id, true)
	if err != nil || rec == nil {
		return nil, err
	}
	if localOnly {
		s.markPending(ctx, id)
	}
	s.cache.SetIf(id, *rec, gen)
	return rec, nil
}

// current reads id bypassing the cache. Pending records are served from the
// local copy, which is newer than the remote one until synced. localOnly
// reports that the remote store answered and does not have the record.
func (s *QRCodeService) current(ctx context.Context, id string, useRemote bool) (rec *domain.QRCode, localOnly bool, err error) {
	if s.sync.IsPending(id) {
		rec, err := s.local.Get(ctx, id)
		if err != nil || rec != nil {
			return rec, false, err
		}
	}

	var remoteErr error
	remoteAnswered := false
	if useRemote && s.sync.Online() {
		rec, err := s.remote.Get(ctx, id)
		if err == nil && rec != nil {
			return rec, false, nil
		}
		remoteErr = err
		remoteAnswered = err == nil
		if err != nil {
			logger.WithFields(logger.Fields{"qr_code_id": id}).Warnf("remote read failed, falling back to local copy: %v", err)
		}
	}

	rec, err = s.local.Get(ctx, id)
	if err != nil {
		if remoteErr != nil {
			return nil, false, remoteErr
		}
		return nil, false, err
	}
	if rec == nil {
		return nil, false, remoteErr
	}
	return rec, remoteAnswered, nil
}

// GetAll lists every record newest first. Records known only locally are
// merged in and queued for synchronization.
func (s *QRCodeService) GetAll(ctx context.Context) ([]domain.QRCode, error) {
	if all, ok := s.cache.GetAll(); ok {
		return all, nil
	}

	gen := s.cache.Generation()
	opts := repository.FindOptions{SortByCreatedDesc: true}
	localRecs, localErr := s.local.GetAll(ctx, nil, opts)
	if localErr != nil {
		logger.Warnf("reading local QR codes failed: %v", localErr)
	}

	if s.sync.Online() {
		remoteRecs, err := s.remote.GetAll(ctx, nil, opts)
		if err == nil {
			merged := s.merge(ctx, remoteRecs, localRecs)
			s.cache.SetAllIf(merged, gen)
			return merged, nil
		}
		logger.Warnf("remote listing failed, falling back to local copy: %v", err)
		if localErr != nil {
			return nil, err
		}
	}
	if localErr != nil {
		return nil, localErr
	}
	return localRecs, nil
}

func (s *QRCodeService) merge(ctx context.Context, remote, local []domain.QRCode) []domain.QRCode {
	byID := make(map[string]int, len(remote))
	out := make([]domain.QRCode, 0, len(remote)+len(local))
	for _, rec := range remote {
		byID[rec.ID] = len(out)
		out = append(out, rec)
	}
	for _, rec := range local {
		i, ok := byID[rec.ID]
		switch {
		case !ok:
			out = append(out, rec)
			s.markPending(ctx, rec.ID)
		case s.sync.IsPending(rec.ID):
			out[i] = rec
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// IncrementScan adds one accepted scan. It returns nil when id is unknown.
func (s *QRCodeService) IncrementScan(ctx context.Context, id string) (*domain.QRCode, error) {
	unlock := s.sync.locks.Lock(id)
	defer unlock()
	return s.incrementLocked(ctx, id, 1)
}

// AcceptScan checks that id accepts submissions and counts the scan, both
// under the record lock so two concurrent scans cannot both take the last
// slot. A rejected scan returns the record and its status without error.
func (s *QRCodeService) AcceptScan(ctx context.Context, id string) (*domain.QRCode, domain.QRCodeStatus, error) {
	unlock := s.sync.locks.Lock(id)
	defer unlock()

	rec, _, err := s.current(ctx, id, true)
	if err != nil {
		return nil, "", err
	}
	if rec == nil {
		return nil, domain.StatusNotFound, nil
	}
	if status := rec.Status(s.Now()); status != domain.StatusActive {
		return rec, status, nil
	}

	updated, err := s.incrementLocked(ctx, id, 1)
	if err != nil {
		return nil, "", err
	}
	if updated == nil {
		return nil, domain.StatusNotFound, nil
	}
	return updated, domain.StatusActive, nil
}

// ReleaseScan gives back a scan counted by AcceptScan whose submission
// could not be stored, so the submitter can retry on the last slot.
func (s *QRCodeService) ReleaseScan(ctx context.Context, id string) (*domain.QRCode, error) {
	unlock := s.sync.locks.Lock(id)
	defer unlock()
	return s.incrementLocked(ctx, id, -1)
}

func (s *QRCodeService) incrementLocked(ctx context.Context, id string, delta int) (*domain.QRCode, error) {
	log := logger.WithFields(logger.Fields{"qr_code_id": id})
	s.cache.Invalidate(id)

	useRemote := true
	if s.sync.Online() && !s.sync.IsPending(id) {
		if inc, ok := s.remote.(repository.Incrementer[domain.QRCode]); ok {
			rec, err := inc.Increment(ctx, id, "currentScans", delta)
			switch {
			case err == nil && rec != nil:
				if err := s.local.Put(ctx, *rec); err != nil {
					log.Warnf("refreshing local copy failed: %v", err)
				}
				s.cache.Invalidate(id)
				return rec, nil
			case errors.Is(err, repository.ErrNotSupported):
			case err != nil:
				// The remote may or may not have applied it. The local
				// write below is replayed as a full record, so the count
				// converges either way.
				log.Warnf("remote increment failed, counting locally: %v", err)
				useRemote = false
			}
		}
	}

	rec, _, err := s.current(ctx, id, useRemote)
	if err != nil || rec == nil {
		return nil, err
	}
	rec.CurrentScans += delta
	if rec.CurrentScans < 0 {
		rec.CurrentScans = 0
	}
	if err := s.storeLocked(ctx, *rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update merges patch into the record and stores it. It returns nil when id
// is unknown.
func (s *QRCodeService) Update(ctx context.Context, id string, patch domain.QRCodePatch) (*domain.QRCode, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	unlock := s.sync.locks.Lock(id)
	defer unlock()
	s.cache.Invalidate(id)

	rec, _, err := s.current(ctx, id, true)
	if err != nil || rec == nil {
		return nil, err
	}
	updated := patch.Apply(*rec)
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if err := s.storeLocked(ctx, updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes the record everywhere and cascades to its feedback. It
// reports false with an error when the remote delete fails, in which case
// nothing else is removed. Feedback is cleaned up even when the record is
// already gone, so retrying a failed cascade is safe.
func (s *QRCodeService) Delete(ctx context.Context, id string) (bool, error) {
	log := logger.WithFields(logger.Fields{"qr_code_id": id})

	unlock := s.sync.locks.Lock(id)
	defer unlock()
	s.cache.Invalidate(id)

	remoteDeleted, err := s.remote.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	localDeleted, err := s.local.Delete(ctx, id)
	if err != nil {
		log.Warnf("removing local copy failed: %v", err)
	}
	s.cache.Invalidate(id)

	if err := s.sync.Forget(ctx, id); err != nil {
		log.Errorf("persisting pending set failed: %v", err)
	}

	deleted := remoteDeleted || localDeleted
	n, err := s.feedback.DeleteMany(ctx, repository.Filter{"qrCodeId": id})
	if err != nil {
		return deleted, err
	}
	if deleted {
		log.WithField("feedback_deleted", n).Infof("QR code deleted")
	}
	return deleted, nil
}

// Check classifies id for the public scan page.
func (s *QRCodeService) Check(ctx context.Context, id string) (domain.QRCodeStatus, *domain.QRCode, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if rec == nil {
		return domain.StatusNotFound, nil, nil
	}
	return rec.Status(s.Now()), rec, nil
}

// URL is the public feedback page a printed QR code points to.
func (s *QRCodeService) URL(id string) string {
	return s.baseURL + "/feedback/" + id
}

func (s *QRCodeService) ClearCache() {
	s.cache.Clear()
}

// IsPending reports whether id is stored locally but not yet confirmed remotely.
func (s *QRCodeService) IsPending(id string) bool {
	return s.sync.IsPending(id)
}
