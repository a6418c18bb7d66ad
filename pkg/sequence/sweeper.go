package sequence

import (
	"context"
	"sync"
	"time"

	"github.com/fleetyard/eldcore/internal/logger"
)

// DefaultSweepInterval is how often the background sweeper scans for
// expired reservation blocks.
const DefaultSweepInterval = 5 * time.Minute

// SweepStore is the maintenance surface the sweeper drives. Satisfied
// by *store.Store.
type SweepStore interface {
	// SweepExpiredReservations prunes expired and exhausted reservation
	// blocks from every scope's state row and returns how many rows
	// changed.
	SweepExpiredReservations(ctx context.Context, now time.Time) (int, error)
}

// Sweeper prunes expired reservation blocks in the background. Expired
// blocks are consumed, never re-issued, so the sweep changes no
// allocation outcome; it reclaims row space and keeps reservation scans
// short on long-lived scopes.
type Sweeper struct {
	store    SweepStore
	interval time.Duration
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper builds a sweeper over the given store. A non-positive
// interval falls back to DefaultSweepInterval.
func NewSweeper(store SweepStore, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: store, interval: interval, now: time.Now}
}

// Start begins the sweep loop.
//
// The loop runs until Stop is called or the parent context is
// cancelled. Start should only be called once; calling it again without
// Stop leaks the previous goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	logger.Info("Reservation sweeper started", "interval", s.interval.String())

	s.wg.Add(1)
	go s.run()
}

// Stop cancels the loop and blocks until it has exited. Safe to call
// more than once.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	swept, err := s.store.SweepExpiredReservations(s.ctx, s.now())
	if err != nil {
		logger.Error("Reservation sweep failed", logger.Err(err))
		return
	}
	if swept > 0 {
		logger.Info("Expired reservation blocks swept", logger.Count(swept))
	}
}
