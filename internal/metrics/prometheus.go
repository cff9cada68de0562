package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"reel/internal/logging"
)

// PrometheusSink implements Sink on the Prometheus client library.
// Registration failures are logged and the affected collector keeps working
// unregistered, so a duplicate registration never takes the daemon down.
type PrometheusSink struct {
	logger *slog.Logger

	batchesTotal    prometheus.Counter
	batchDuration   prometheus.Histogram
	batchOutcomes   *prometheus.CounterVec
	stageStarts     *prometheus.CounterVec
	stageOutcomes   *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	syncDiscovered  *prometheus.CounterVec
	syncSkipped     *prometheus.CounterVec
	tokenRefreshes  *prometheus.CounterVec
}

// NewPrometheusSink builds a sink registered against reg.
func NewPrometheusSink(reg prometheus.Registerer, logger *slog.Logger) *PrometheusSink {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &PrometheusSink{logger: logging.NewComponentLogger(logger, "metrics")}

	s.batchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reel_workflow_batches_total",
		Help: "Total number of batch runs started.",
	})
	s.batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reel_workflow_batch_duration_seconds",
		Help:    "Wall-clock duration of each batch run.",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	})
	s.batchOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reel_workflow_batch_recordings_total",
		Help: "Recording outcomes aggregated per batch run.",
	}, []string{"outcome"})
	s.stageStarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reel_stage_starts_total",
		Help: "Stage executions started, per stage.",
	}, []string{"stage"})
	s.stageOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reel_stage_outcomes_total",
		Help: "Stage executions finished, per stage and outcome.",
	}, []string{"stage", "outcome"})
	s.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reel_stage_duration_seconds",
		Help:    "Stage execution latency, per stage.",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 7200},
	}, []string{"stage"})
	s.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reel_recordings_in_flight",
		Help: "Recordings currently owned by an orchestrator goroutine.",
	})
	s.syncDiscovered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reel_sync_discovered_total",
		Help: "Recordings admitted to the queue by intake sync, per account.",
	}, []string{"account"})
	s.syncSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reel_sync_skipped_total",
		Help: "Recordings rejected by intake rules, per account.",
	}, []string{"account"})
	s.tokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reel_token_refreshes_total",
		Help: "Credential refresh attempts, per account and result.",
	}, []string{"account", "result"})

	s.register(reg, s.batchesTotal, "reel_workflow_batches_total")
	s.register(reg, s.batchDuration, "reel_workflow_batch_duration_seconds")
	s.register(reg, s.batchOutcomes, "reel_workflow_batch_recordings_total")
	s.register(reg, s.stageStarts, "reel_stage_starts_total")
	s.register(reg, s.stageOutcomes, "reel_stage_outcomes_total")
	s.register(reg, s.stageDuration, "reel_stage_duration_seconds")
	s.register(reg, s.inFlight, "reel_recordings_in_flight")
	s.register(reg, s.syncDiscovered, "reel_sync_discovered_total")
	s.register(reg, s.syncSkipped, "reel_sync_skipped_total")
	s.register(reg, s.tokenRefreshes, "reel_token_refreshes_total")
	return s
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if reg == nil {
		return
	}
	if err := reg.Register(c); err != nil {
		s.logger.Warn("metric registration failed",
			logging.String("metric", name),
			logging.Error(err))
	}
}

func (s *PrometheusSink) BatchStarted(size int) {
	s.batchesTotal.Inc()
}

func (s *PrometheusSink) BatchCompleted(duration time.Duration, succeeded, failed int) {
	s.batchDuration.Observe(duration.Seconds())
	s.batchOutcomes.WithLabelValues(OutcomeCompleted).Add(float64(succeeded))
	s.batchOutcomes.WithLabelValues(OutcomeFailed).Add(float64(failed))
}

func (s *PrometheusSink) StageStarted(stage string) {
	s.stageStarts.WithLabelValues(stage).Inc()
}

func (s *PrometheusSink) StageCompleted(stage string, duration time.Duration, outcome string) {
	s.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	s.stageOutcomes.WithLabelValues(stage, outcome).Inc()
}

func (s *PrometheusSink) RecordingsInFlight(count int) {
	s.inFlight.Set(float64(count))
}

func (s *PrometheusSink) SyncCompleted(account string, discovered, skipped int) {
	s.syncDiscovered.WithLabelValues(account).Add(float64(discovered))
	s.syncSkipped.WithLabelValues(account).Add(float64(skipped))
}

func (s *PrometheusSink) TokenRefresh(account string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.tokenRefreshes.WithLabelValues(account, result).Inc()
}
