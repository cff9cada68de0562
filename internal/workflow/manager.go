package workflow

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"reel/internal/analytics"
	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/metrics"
	"reel/internal/notifications"
	"reel/internal/queue"
	"reel/internal/stage"
)

// Manager owns the daemon-side processing loop: it polls the queue for
// eligible recordings, reclaims stale work, retires old rows, and feeds
// batches to the scheduler.
type Manager struct {
	cfg       *config.Config
	store     *queue.Store
	logger    *slog.Logger
	notifier  notifications.Service
	metrics   metrics.Sink
	analytics analytics.Sink

	pipeline  *Pipeline
	sched     *Scheduler
	heartbeat *HeartbeatMonitor

	pollInterval       time.Duration
	errorRetryInterval time.Duration

	kick chan struct{}

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastErr   error
	lastSweep time.Time
}

// ManagerOption configures optional manager collaborators.
type ManagerOption func(*Manager)

// WithNotifier overrides the notification service, used by tests.
func WithNotifier(n notifications.Service) ManagerOption {
	return func(m *Manager) { m.notifier = n }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(sink metrics.Sink) ManagerOption {
	return func(m *Manager) { m.metrics = sink }
}

// WithAnalytics attaches an analytics sink.
func WithAnalytics(sink analytics.Sink) ManagerOption {
	return func(m *Manager) { m.analytics = sink }
}

// NewManager constructs the workflow manager around the five stage executors.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, execs Executors, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:                cfg,
		store:              store,
		logger:             logging.NewComponentLogger(logger, "workflow-manager"),
		notifier:           notifications.NewService(cfg),
		metrics:            metrics.NewNoopSink(),
		analytics:          analytics.NewNoopSink(),
		pollInterval:       time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		kick:               make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.pollInterval <= 0 {
		m.pollInterval = 5 * time.Second
	}
	if m.errorRetryInterval <= 0 {
		m.errorRetryInterval = m.pollInterval
	}

	rollbacks := rollbacksFor(cfg)
	m.heartbeat = NewHeartbeatMonitor(
		store,
		logger,
		time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
		time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		rollbacks,
	)
	m.pipeline = NewPipeline(cfg, execs)
	orch := NewOrchestrator(cfg, store, m.pipeline, newGateSet(cfg.Workflow), m.heartbeat, logger, m.metrics, m.notifier)
	m.sched = NewScheduler(orch, logger, m.metrics)
	return m
}

// SetProgressSink forwards per-recording outcomes to ch without blocking.
func (m *Manager) SetProgressSink(ch chan<- Outcome) {
	m.sched.SetProgressSink(ch)
}

// Start resets recordings stranded in a processing status by the previous
// run, then launches the poll loop. Safe to call once per manager.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	reset, err := m.store.ResetStuckProcessing(ctx, rollbacksFor(m.cfg)...)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if reset > 0 {
		m.logger.Info("reset interrupted recordings", logging.Int64("count", reset))
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx)
	return nil
}

// Stop cancels the poll loop and waits for in-flight work to unwind.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

// ProcessNow asks the poll loop to run a batch immediately.
func (m *Manager) ProcessNow() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	timer := time.NewTimer(m.pollInterval)
	defer timer.Stop()

	for {
		if err := m.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setLastError(err)
			m.logger.Warn("processing pass failed", logging.Error(err))
			if !sleepCtx(ctx, m.errorRetryInterval) {
				return
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(m.pollInterval)

		select {
		case <-ctx.Done():
			return
		case <-m.kick:
		case <-timer.C:
		}
	}
}

// runOnce performs one full pass: reclaim stale work, sweep retention, then
// process every eligible recording as a batch.
func (m *Manager) runOnce(ctx context.Context) error {
	if err := m.heartbeat.ReclaimStale(ctx); err != nil {
		return err
	}
	m.sweepRetention(ctx)

	recs, err := m.store.List(ctx, EligibleStatuses()...)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	started := time.Now()
	outcomes := m.sched.RunBatch(ctx, recs)

	processed, failed := 0, 0
	for _, outcome := range outcomes {
		if outcome.Succeeded() {
			processed++
		}
		if outcome.Err != nil && !outcome.Canceled {
			failed++
			m.setLastError(outcome.Err)
			if err := m.analytics.RecordingFailed(ctx, outcome.Account, outcome.FailedStage, time.Now()); err != nil {
				m.logger.Warn("analytics write failed", logging.Error(err))
			}
		}
		if outcome.Published() {
			if err := m.analytics.RecordingPublished(ctx, outcome.Account, time.Now()); err != nil {
				m.logger.Warn("analytics write failed", logging.Error(err))
			}
		}
	}

	if processed+failed > 0 {
		if err := m.notifier.NotifyBatchCompleted(ctx, processed, failed, time.Since(started)); err != nil {
			m.logger.Warn("batch notification failed", logging.Error(err))
		}
	}
	return nil
}

// sweepRetention retires published recordings older than the configured
// window and removes their staging directories. Runs at most once per hour.
func (m *Manager) sweepRetention(ctx context.Context) {
	days := m.cfg.Workflow.RetentionDays
	if days <= 0 {
		return
	}
	m.mu.Lock()
	due := time.Since(m.lastSweep) >= time.Hour
	if due {
		m.lastSweep = time.Now()
	}
	m.mu.Unlock()
	if !due {
		return
	}

	m.retire(ctx, time.Now().AddDate(0, 0, -days))
}

// retire marks published recordings older than cutoff retired and removes
// their staging directories.
func (m *Manager) retire(ctx context.Context, cutoff time.Time) {
	retired, err := m.store.RetireOlderThan(ctx, cutoff)
	if err != nil {
		m.logger.Warn("retention sweep failed", logging.Error(err))
		return
	}
	for _, rec := range retired {
		dir := filepath.Join(m.cfg.Paths.StagingDir, rec.UID)
		if err := os.RemoveAll(dir); err != nil {
			m.logger.Warn("failed to remove staging directory",
				logging.String("dir", dir),
				logging.Error(err))
		}
	}
	if len(retired) > 0 {
		m.logger.Info("retired recordings", logging.Int("count", len(retired)))
	}
}

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	LastError   string
	InFlight    int
	QueueStats  map[queue.Status]int
	StageHealth map[string]stage.Health
}

// Status gathers queue statistics and per-stage health.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}

	health := make(map[string]stage.Health, len(m.pipeline.Stages()))
	for _, st := range m.pipeline.Stages() {
		if st.executor == nil || !st.enabled {
			continue
		}
		health[st.name] = st.executor.HealthCheck(ctx)
	}

	summary := StatusSummary{
		Running:     running,
		InFlight:    m.sched.InFlight(),
		QueueStats:  stats,
		StageHealth: health,
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// sleepCtx waits for d unless ctx ends first. Reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
