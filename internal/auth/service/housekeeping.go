package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/crm/internal/auth/metrics"
	"github.com/aussiebroadwan/crm/internal/auth/store"
)

// HousekeepingService periodically removes expired refresh credentials.
// Redemption already deletes an expired record it matches; this catches the
// ones nobody presents again.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration
	Metrics  *metrics.Metrics
	Now      func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. A non-positive
// interval defaults to one hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    store,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce performs one cleanup pass and returns the number of deleted records.
func (s *HousekeepingService) RunOnce(ctx context.Context) int64 {
	n, err := s.Store.RefreshCredentials().DeleteExpiredRefreshCredentials(ctx, clock(s.Now))
	if err != nil {
		s.Logger.Error("failed to delete expired refresh credentials", "error", err)
		return 0
	}

	s.Metrics.ExpiredCredentialsDeleted(n)
	s.Logger.Info("housekeeping cleanup completed", "deleted_refresh_credentials", n)
	return n
}
