package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/logger"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/repository"
)

// ConnectivityMonitor tracks whether the remote store answers pings and
// publishes every online/offline transition to its subscribers.
type ConnectivityMonitor struct {
	pinger   repository.Pinger
	interval time.Duration
	online   atomic.Bool

	mu   sync.Mutex
	subs map[int]chan bool
	next int
}

// NewConnectivityMonitor starts optimistic: online until a ping fails.
// A nil pinger is always online.
func NewConnectivityMonitor(pinger repository.Pinger, interval time.Duration) *ConnectivityMonitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	m := &ConnectivityMonitor{
		pinger:   pinger,
		interval: interval,
		subs:     make(map[int]chan bool),
	}
	m.online.Store(true)
	return m
}

func (m *ConnectivityMonitor) Online() bool { return m.online.Load() }

// Check pings once and records the result.
func (m *ConnectivityMonitor) Check(ctx context.Context) bool {
	if m.pinger == nil {
		return true
	}
	err := m.pinger.Ping(ctx)
	if err != nil {
		logger.Debugf("remote store ping failed: %v", err)
	}
	m.Set(err == nil)
	return err == nil
}

// Set overrides the connectivity state and notifies subscribers on change.
func (m *ConnectivityMonitor) Set(online bool) {
	if m.online.Swap(online) == online {
		return
	}
	if online {
		logger.Infof("remote store is reachable again")
	} else {
		logger.Warnf("remote store is unreachable, working offline")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- online:
		default:
		}
	}
}

// Subscribe returns a channel of transitions and a function that ends the
// subscription. Slow subscribers miss transitions rather than block.
func (m *ConnectivityMonitor) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 8)

	m.mu.Lock()
	id := m.next
	m.next++
	m.subs[id] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Run pings on every interval until ctx ends.
func (m *ConnectivityMonitor) Run(ctx context.Context) {
	if m.pinger == nil {
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
