package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often in-process caches are swept
const DefaultCleanupInterval = 5 * time.Minute

// Sweeper drops expired entries and reports how many it removed.
// Satisfied by *ratelimit.MemoryLimiter and *auth.PermissionCache.
type Sweeper interface {
	Sweep() int
}

// CleanupManager periodically purges expired entries from in-memory stores
// that would otherwise only shrink under load
type CleanupManager struct {
	sweepers map[string]Sweeper
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager. Nil sweepers are ignored.
func NewCleanupManager(sweepers map[string]Sweeper, logger *slog.Logger, interval time.Duration) *CleanupManager {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	active := make(map[string]Sweeper, len(sweepers))
	for name, s := range sweepers {
		if s != nil {
			active[name] = s
		}
	}
	return &CleanupManager{
		sweepers: active,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task. It blocks until Stop is called
// or ctx is cancelled.
func (cm *CleanupManager) Start(ctx context.Context) {
	if len(cm.sweepers) == 0 {
		return
	}

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.RunOnce()
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce sweeps every store and returns the number of entries removed
func (cm *CleanupManager) RunOnce() int {
	total := 0
	for name, s := range cm.sweepers {
		removed := s.Sweep()
		if removed > 0 {
			cm.logger.Debug("expired entries swept", slog.String("store", name), slog.Int("removed", removed))
		}
		total += removed
	}
	return total
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
