package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/domain"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/logger"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/repository"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/storage"
)

type SyncStatus string

const (
	SyncOnline  SyncStatus = "online"
	SyncOffline SyncStatus = "offline"
	SyncSyncing SyncStatus = "syncing"
)

// Clearer is the part of the QR code cache a forced sync needs.
type Clearer interface {
	Clear()
}

type SyncConfig struct {
	Interval    time.Duration
	Concurrency int
}

// SyncService replicates locally written QR codes to the remote store. Ids
// whose remote write could not be confirmed stay in a pending set that is
// persisted next to the local copy.
type SyncService struct {
	local   repository.Store[domain.QRCode]
	remote  repository.Store[domain.QRCode]
	blobs   storage.Blobs
	cache   Clearer
	monitor *ConnectivityMonitor
	cfg     SyncConfig

	locks keyedMutex

	mu      sync.Mutex
	pending map[string]struct{}

	passMu   sync.Mutex
	inFlight atomic.Int32

	subsMu     sync.Mutex
	subs       map[int]chan SyncStatus
	nextSub    int
	lastStatus SyncStatus
}

func NewSyncService(
	ctx context.Context,
	local, remote repository.Store[domain.QRCode],
	blobs storage.Blobs,
	cache Clearer,
	monitor *ConnectivityMonitor,
	cfg SyncConfig,
) (*SyncService, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	s := &SyncService{
		local:   local,
		remote:  remote,
		blobs:   blobs,
		cache:   cache,
		monitor: monitor,
		cfg:     cfg,
		pending: make(map[string]struct{}),
		subs:    make(map[int]chan SyncStatus),
	}
	if err := s.loadPending(ctx); err != nil {
		return nil, err
	}
	s.lastStatus = s.Status()
	return s, nil
}

func (s *SyncService) loadPending(ctx context.Context) error {
	data, err := s.blobs.Read(ctx, repository.PendingKey)
	if errors.Is(err, storage.ErrBlobNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		logger.Warnf("discarding corrupted pending sync list: %v", err)
		return s.blobs.Remove(ctx, repository.PendingKey)
	}
	for _, id := range ids {
		s.pending[id] = struct{}{}
	}
	if len(ids) > 0 {
		logger.Infof("%d QR code(s) waiting to be synchronized", len(ids))
	}
	return nil
}

// persistLocked writes the pending set. Callers hold s.mu.
func (s *SyncService) persistLocked(ctx context.Context) error {
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.blobs.Write(ctx, repository.PendingKey, data)
}

// Online reports the last known reachability of the remote store.
func (s *SyncService) Online() bool { return s.monitor.Online() }

func (s *SyncService) Monitor() *ConnectivityMonitor { return s.monitor }

// RecordPendingWrite marks id as written locally but not confirmed remotely.
func (s *SyncService) RecordPendingWrite(ctx context.Context, id string) error {
	s.mu.Lock()
	_, known := s.pending[id]
	s.pending[id] = struct{}{}
	var err error
	if !known {
		err = s.persistLocked(ctx)
	}
	s.mu.Unlock()

	if !known {
		logger.WithFields(logger.Fields{"qr_code_id": id}).Infof("QR code queued for synchronization")
		s.broadcast()
	}
	return err
}

// Forget drops id from the pending set, e.g. once the record is deleted or
// confirmed remotely.
func (s *SyncService) Forget(ctx context.Context, id string) error {
	s.mu.Lock()
	_, known := s.pending[id]
	delete(s.pending, id)
	var err error
	if known {
		err = s.persistLocked(ctx)
	}
	s.mu.Unlock()

	if known {
		s.broadcast()
	}
	return err
}

func (s *SyncService) IsPending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// Pending returns the pending ids in sorted order.
func (s *SyncService) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *SyncService) Status() SyncStatus {
	if !s.monitor.Online() {
		return SyncOffline
	}
	s.mu.Lock()
	n := len(s.pending)
	s.mu.Unlock()
	if n > 0 || s.inFlight.Load() > 0 {
		return SyncSyncing
	}
	return SyncOnline
}

// SyncPendingRecords pushes the local copy of every pending id to the remote
// store. An id leaves the pending set only after the remote store returns it.
// Overlapping calls run one after another.
func (s *SyncService) SyncPendingRecords(ctx context.Context) (int, error) {
	s.inFlight.Add(1)
	s.broadcast()
	defer func() {
		s.inFlight.Add(-1)
		s.broadcast()
	}()

	s.passMu.Lock()
	defer s.passMu.Unlock()

	ids := s.Pending()
	if len(ids) == 0 {
		return 0, nil
	}

	var synced atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if s.syncOne(gctx, id) {
				synced.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(synced.Load())
	logger.WithFields(logger.Fields{"synced": n, "pending": len(ids) - n}).Infof("synchronization pass finished")
	return n, ctx.Err()
}

func (s *SyncService) syncOne(ctx context.Context, id string) bool {
	unlock := s.locks.Lock(id)
	defer unlock()

	log := logger.WithFields(logger.Fields{"qr_code_id": id})

	rec, err := s.local.Get(ctx, id)
	if err != nil {
		log.Warnf("reading local copy failed: %v", err)
		return false
	}
	if rec == nil {
		log.Warnf("local copy vanished, dropping from pending set")
		if err := s.Forget(ctx, id); err != nil {
			log.Errorf("persisting pending set failed: %v", err)
		}
		return false
	}

	if err := s.remote.Put(ctx, *rec); err != nil {
		log.Warnf("remote write failed, keeping pending: %v", err)
		return false
	}
	confirmed, err := s.remote.Get(ctx, id)
	if err != nil || confirmed == nil {
		log.Warnf("remote write not confirmed, keeping pending: %v", err)
		return false
	}

	if err := s.Forget(ctx, id); err != nil {
		log.Errorf("persisting pending set failed: %v", err)
	}
	return true
}

// ForceSynchronization empties the QR code cache and runs a sync pass.
func (s *SyncService) ForceSynchronization(ctx context.Context) (int, error) {
	s.cache.Clear()
	return s.SyncPendingRecords(ctx)
}

// Run syncs once whenever the remote store comes back and on every interval
// while online, until ctx ends.
func (s *SyncService) Run(ctx context.Context) {
	transitions, cancel := s.monitor.Subscribe()
	defer cancel()
	go s.monitor.Run(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case online := <-transitions:
			s.broadcast()
			if online {
				s.runPass(ctx, "reconnected")
			}
		case <-ticker.C:
			if s.monitor.Online() && len(s.Pending()) > 0 {
				s.runPass(ctx, "interval")
			}
		}
	}
}

func (s *SyncService) runPass(ctx context.Context, trigger string) {
	if _, err := s.SyncPendingRecords(ctx); err != nil && ctx.Err() == nil {
		logger.WithFields(logger.Fields{"trigger": trigger}).Warnf("synchronization pass failed: %v", err)
	}
}

// Subscribe returns a channel receiving every status change.
func (s *SyncService) Subscribe() (<-chan SyncStatus, func()) {
	ch := make(chan SyncStatus, 8)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	return ch, func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *SyncService) broadcast() {
	status := s.Status()

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if status == s.lastStatus {
		return
	}
	s.lastStatus = status
	for _, ch := range s.subs {
		select {
		case ch <- status:
		default:
		}
	}
}

// keyedMutex serialises work per record id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(id string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
