package storage

import (
	"context"
	"log"
	"sync"
	"time"
)

// Syncer drives the scheduled background fetch cycle. A manual sync through
// the API may overlap a scheduled one; both are idempotent with respect to
// the freshness window, so the overlap is at worst one extra upstream call.
type Syncer struct {
	store    *Store
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewSyncer creates a background syncer.
func NewSyncer(store *Store, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Syncer{
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sync loop.
func (s *Syncer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.loop(ctx)
	log.Printf("syncer: background fetch every %s", s.interval)
}

// Stop halts the sync loop.
func (s *Syncer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		close(s.stopCh)
		s.running = false
	}
}

func (s *Syncer) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.store.SyncNow(ctx)
		}
	}
}
