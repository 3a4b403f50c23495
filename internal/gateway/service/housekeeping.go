package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/chatgate/internal/gateway/revoke"
	"github.com/aussiebroadwan/chatgate/internal/gateway/store"
)

func nowUTC() time.Time { return time.Now().UTC() }

// HousekeepingService periodically cleans up expired database records and
// sweeps the revocation store to prevent unbounded growth.
type HousekeepingService struct {
	Store    store.Store
	Revoked  *revoke.Store
	Logger   *slog.Logger
	Interval time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 5 minutes.
func NewHousekeepingService(st store.Store, revoked *revoke.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &HousekeepingService{
		Store:    st,
		Revoked:  revoked,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// This is non-blocking and should be called after the database is ready.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

// run is the main background worker loop.
func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup performs the actual deletion of expired records.
// Each deletion is independent - failures in one won't stop the others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	now := nowUTC()

	if n, err := s.Store.DeviceGrants().DeleteExpiredDeviceGrants(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired device grants", "error", err)
	} else if n > 0 {
		s.Logger.Debug("deleted expired device grants", "count", n)
	}

	if n, err := s.Store.Sessions().DeleteExpiredSessions(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired sessions", "error", err)
	} else if n > 0 {
		s.Logger.Debug("deleted expired sessions", "count", n)
	}

	if n := s.Revoked.Sweep(); n > 0 {
		s.Logger.Debug("swept expired revocation entries",
			"removed", n,
			"remaining", s.Revoked.Len(),
		)
	}
}
