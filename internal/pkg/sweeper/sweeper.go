package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/shopflux/shopflux/internal/pkg/sessionstore"
)

const sweepBatchSize = 200

// Sweeper is the periodic reconciliation pass over the session store: it
// durably expires overdue sessions and repairs cache entries from the
// durable record, healing staleness left by swallowed durable-write
// failures.
type Sweeper struct {
	store    *sessionstore.Store
	repo     *sessionstore.Repository
	interval time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// New creates a sweeper; interval defaults to one minute.
func New(store *sessionstore.Store, repo *sessionstore.Repository, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:    store,
		repo:     repo,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background sweep loop. Safe to call once per
// process; repeated calls are no-ops while running.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.stopCh = make(chan struct{})
	s.running = true

	s.wg.Add(1)
	go s.run()
	log.Info("[Sweeper] session reconciliation sweep started")
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	log.Info("[Sweeper] session reconciliation sweep stopped")
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			s.Sweep(ctx)
			cancel()
		}
	}
}

// Sweep performs a single reconciliation pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	overdue, err := s.repo.FindOverdue(ctx, now, sweepBatchSize)
	if err != nil {
		log.Errorf("[Sweeper] listing overdue sessions: %v", err)
	}
	for _, id := range overdue {
		if err := s.repo.MarkExpired(ctx, id, now); err != nil {
			log.Errorf("[Sweeper] expiring session %s: %v", id, err)
			continue
		}
		if err := s.store.RepairCache(ctx, id); err != nil {
			log.Warnf("[Sweeper] repairing cache for %s: %v", id, err)
		}
	}

	recent, err := s.repo.FindRecentlyUpdated(ctx, now.Add(-2*s.interval), sweepBatchSize)
	if err != nil {
		log.Errorf("[Sweeper] listing recently updated sessions: %v", err)
		return
	}
	for _, id := range recent {
		if err := s.store.RepairCache(ctx, id); err != nil {
			log.Warnf("[Sweeper] repairing cache for %s: %v", id, err)
		}
	}
}
