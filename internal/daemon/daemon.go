package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/notifications"
	"reel/internal/preflight"
	"reel/internal/queue"
	"reel/internal/source"
	"reel/internal/workflow"
)

// Daemon coordinates the background services and enforces single-instance
// execution via a lock file in the log directory.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	syncer   *source.Syncer
	notifier notifications.Service
	metrics  http.Handler
	logPath  string

	lockPath string
	lock     *flock.Flock

	running    atomic.Bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	metricsSrv *http.Server
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies. The syncer and
// metrics handler are optional; the notifier defaults to the configured
// service when nil.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, syncer *source.Syncer, notifier notifications.Service, metricsHandler http.Handler) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "reeld.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		workflow: wf,
		syncer:   syncer,
		notifier: notifier,
		metrics:  metricsHandler,
		logPath:  filepath.Join(cfg.Paths.LogDir, "reel.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, launches the workflow manager and intake
// syncer, and exposes the metrics listener when configured.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reel daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.cancel = cancel

	if d.syncer != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.syncer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("intake syncer exited", logging.Error(err))
			}
		}()
	}

	if d.metrics != nil && d.cfg.Metrics.Enabled {
		d.startMetricsServer()
	}

	d.running.Store(true)
	d.logger.Info("reel daemon started", logging.String("lock", d.lockPath))
	if err := d.notifier.NotifyDaemonStarted(runCtx); err != nil {
		d.logger.Warn("daemon start notification failed", logging.Error(err))
	}
	return nil
}

func (d *Daemon) startMetricsServer() {
	srv := &http.Server{
		Addr:              d.cfg.Metrics.Bind,
		Handler:           d.metrics,
		ReadHeaderTimeout: 5 * time.Second,
	}
	d.metricsSrv = srv
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.logger.Info("metrics listener started", logging.String("bind", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Warn("metrics listener failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "metrics_listener_failed"))
		}
	}()
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if d.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := d.metricsSrv.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("metrics listener shutdown failed", logging.Error(err))
		}
		cancel()
		d.metricsSrv = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)

	notifyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := d.notifier.NotifyDaemonStopped(notifyCtx); err != nil {
		d.logger.Warn("daemon stop notification failed", logging.Error(err))
	}
	cancel()
	d.logger.Info("reel daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// SyncNow runs one intake pass against every enabled account.
func (d *Daemon) SyncNow(ctx context.Context) (source.Summary, error) {
	if d.syncer == nil {
		return source.Summary{}, errors.New("intake syncer unavailable")
	}
	return d.syncer.SyncAll(ctx)
}

// ProcessNow requests an immediate queue pass without waiting for the poll
// interval.
func (d *Daemon) ProcessNow() {
	d.workflow.ProcessNow()
}

// ListQueue returns recordings filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Recording, error) {
	if d.store == nil {
		return nil, errors.New("queue store unavailable")
	}
	return d.store.List(ctx, statuses...)
}

// GetRecording fetches one recording by id.
func (d *Daemon) GetRecording(ctx context.Context, id int64) (*queue.Recording, error) {
	if d.store == nil {
		return nil, errors.New("queue store unavailable")
	}
	return d.store.GetByID(ctx, id)
}

// RemoveRecordings deletes specific recordings by id.
func (d *Daemon) RemoveRecordings(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	var removed int64
	for _, id := range ids {
		ok, err := d.store.Remove(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// ClearQueue removes all recordings.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.Clear(ctx)
}

// ClearPublished removes only published and retired recordings.
func (d *Daemon) ClearPublished(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.ClearPublished(ctx)
}

// ClearFailed removes only failed recordings.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.ClearFailed(ctx)
}

// ResetStuck returns recordings stranded in processing states to the start
// of their current stage.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.ResetStuckProcessing(ctx)
}

// RetryFailed resets failed recordings (optionally a subset) for another
// attempt.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.RetryFailed(ctx, ids...)
}

// ReconsiderSkipped returns skipped recordings (optionally a subset) to the
// intake state.
func (d *Daemon) ReconsiderSkipped(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.ReconsiderSkipped(ctx, ids...)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	if d.store == nil {
		return queue.HealthSummary{}, errors.New("queue store unavailable")
	}
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	if d.store == nil {
		return queue.DatabaseHealth{}, errors.New("queue store unavailable")
	}
	return d.store.CheckHealth(ctx)
}

// Preflight runs the environment checks against the current configuration.
func (d *Daemon) Preflight(ctx context.Context) []preflight.Result {
	return preflight.RunAll(ctx, d.cfg)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	summary := d.workflow.Status(ctx)
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     summary,
		QueueDBPath:  filepath.Join(d.cfg.Paths.LogDir, "queue.db"),
		LockFilePath: d.lockPath,
	}
}
