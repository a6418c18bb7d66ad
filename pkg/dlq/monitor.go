package dlq

import (
	"context"
	"sync"
	"time"

	"github.com/fleetyard/eldcore/internal/logger"
)

// DefaultMonitorInterval is how often the background monitor refreshes
// queue depth statistics.
const DefaultMonitorInterval = 5 * time.Minute

// Monitor periodically refreshes dead-letter depth statistics so the
// metrics gauge and the alert-threshold log stay current between
// operator actions. Without it, depth would only update when someone
// calls the stats surface.
type Monitor struct {
	service  *Service
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor builds a monitor over the service. A non-positive interval
// falls back to DefaultMonitorInterval.
func NewMonitor(service *Service, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &Monitor{service: service, interval: interval}
}

// Start begins the refresh loop.
//
// The loop runs until Stop is called or the parent context is
// cancelled. Start should only be called once; calling it again without
// Stop leaks the previous goroutine.
func (m *Monitor) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)

	logger.Info("Dead letter monitor started", "interval", m.interval.String())

	m.wg.Add(1)
	go m.run()
}

// Stop cancels the loop and blocks until it has exited. Safe to call
// more than once.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			// Stats publishes the depth gauge and logs a threshold
			// breach as side effects.
			if _, err := m.service.Stats(m.ctx); err != nil {
				logger.Error("Dead letter depth refresh failed", logger.Err(err))
			}
		}
	}
}
