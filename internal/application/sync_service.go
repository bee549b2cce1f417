package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jobrunner/gpkgkit/internal/domain"
	"github.com/jobrunner/gpkgkit/internal/ports/input"
)

// DefaultSyncCooldown is the minimum spacing of manual sync requests.
const DefaultSyncCooldown = 30 * time.Second

// SyncService re-syncs the registry with object storage on a schedule and
// on request.
type SyncService struct {
	registry *PackageRegistry
	interval time.Duration
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// serializes sync runs
	runMu sync.Mutex

	mu         sync.Mutex
	lastManual time.Time
	nextSync   time.Time
}

// NewSyncService creates a new sync service.
func NewSyncService(registry *PackageRegistry, interval time.Duration, logger *slog.Logger) *SyncService {
	return &SyncService{
		registry: registry,
		interval: interval,
		cooldown: DefaultSyncCooldown,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sync scheduler. A non-positive interval
// disables scheduling; TriggerSync still works.
func (s *SyncService) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("scheduled sync disabled")
		return
	}
	s.logger.Info("starting sync service", "interval", s.interval)

	s.wg.Add(1)
	go s.run(ctx)
}

func (s *SyncService) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.setNextSync(s.now().Add(s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync service stopped: context canceled")
			return
		case <-s.stopCh:
			s.logger.Info("sync service stopped")
			return
		case <-ticker.C:
			s.logger.Debug("scheduled sync triggered")
			if _, err := s.sync(ctx); err != nil {
				s.logger.Error("sync failed", "error", err)
			}
			s.setNextSync(s.now().Add(s.interval))
		}
	}
}

// Stop stops the scheduler and waits for a running sync to finish.
func (s *SyncService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping sync service")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// TriggerSync runs a sync now. It returns domain.ErrRateLimited when
// called again within the cooldown.
func (s *SyncService) TriggerSync(ctx context.Context) (domain.SyncResult, error) {
	s.mu.Lock()
	now := s.now()
	if !s.lastManual.IsZero() && now.Sub(s.lastManual) < s.cooldown {
		s.mu.Unlock()
		return domain.SyncResult{}, domain.ErrRateLimited
	}
	s.lastManual = now
	s.mu.Unlock()

	return s.sync(ctx)
}

func (s *SyncService) sync(ctx context.Context) (domain.SyncResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	stats, err := s.registry.Sync(ctx)
	if err != nil {
		return domain.SyncResult{}, err
	}

	return domain.SyncResult{
		PackagesAdded:   stats.Added,
		PackagesRemoved: stats.Removed,
		PackagesTotal:   s.registry.PackageCount(),
		SyncedAt:        s.now(),
		NextScheduledAt: s.NextSync(),
	}, nil
}

func (s *SyncService) setNextSync(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSync = t
}

// NextSync returns the time of the next scheduled sync, or the zero time
// when scheduling is off.
func (s *SyncService) NextSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSync
}

// Interval returns the sync interval.
func (s *SyncService) Interval() time.Duration {
	return s.interval
}

var _ input.SyncTrigger = (*SyncService)(nil)
