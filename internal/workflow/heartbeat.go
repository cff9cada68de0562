package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"reel/internal/logging"
	"reel/internal/queue"
)

// HeartbeatMonitor keeps in-flight recordings visibly alive and reclaims
// ones whose owner died without cleaning up.
type HeartbeatMonitor struct {
	store     *queue.Store
	logger    *slog.Logger
	interval  time.Duration
	timeout   time.Duration
	rollbacks []queue.StatusTransition
}

// NewHeartbeatMonitor creates a monitor. rollbacks maps each in-flight
// status to the at-rest status a reclaimed recording returns to.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration, rollbacks []queue.StatusTransition) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HeartbeatMonitor{
		store:     store,
		logger:    logging.NewComponentLogger(logger, "workflow-heartbeat"),
		interval:  interval,
		timeout:   timeout,
		rollbacks: rollbacks,
	}
}

// ReclaimStale resets recordings whose heartbeat stopped longer ago than the
// timeout. Covers crashes and hard kills that skipped the orchestrator's own
// rollback.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context) error {
	if h.timeout <= 0 || len(h.rollbacks) == 0 {
		return nil
	}
	cutoff := time.Now().Add(-h.timeout)
	reclaimed, err := h.store.ReclaimStaleProcessing(ctx, cutoff, h.rollbacks...)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale recordings", logging.Int64("count", reclaimed))
	}
	return nil
}

// StartLoop updates one recording's heartbeat until ctx ends. Runs for the
// duration of a stage execution.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, recordingID int64) {
	defer wg.Done()
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, recordingID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
