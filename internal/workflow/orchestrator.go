package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/metrics"
	"reel/internal/notifications"
	"reel/internal/queue"
	"reel/internal/services"
	"reel/internal/stage"
)

// Orchestrator drives a single recording through the stage table. It is the
// only writer of the recording's status and stage map; executors hand back
// artifacts and errors and the orchestrator applies every transition,
// persisting each one before the next stage runs. The scheduler guarantees at
// most one orchestrator pass per recording at a time.
type Orchestrator struct {
	cfg       *config.Config
	store     *queue.Store
	pipeline  *Pipeline
	gates     *gateSet
	heartbeat *HeartbeatMonitor
	logger    *slog.Logger
	metrics   metrics.Sink
	notifier  notifications.Service
}

// NewOrchestrator wires an orchestrator. gates and heartbeat may be nil; the
// scheduler supplies both in daemon use, tests often run without them.
func NewOrchestrator(cfg *config.Config, store *queue.Store, pipeline *Pipeline, gates *gateSet, heartbeat *HeartbeatMonitor, logger *slog.Logger, sink metrics.Sink, notifier notifications.Service) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		pipeline:  pipeline,
		gates:     gates,
		heartbeat: heartbeat,
		logger:    logging.NewComponentLogger(logger, "workflow"),
		metrics:   sink,
		notifier:  notifier,
	}
}

// Run advances rec through every stage it is eligible for, stopping at the
// first failure or cancellation. Completed stages are skipped without
// invoking their executor, which is what makes crash recovery a plain rerun.
func (o *Orchestrator) Run(ctx context.Context, rec *queue.Recording) Outcome {
	outcome := Outcome{
		RecordingID: rec.ID,
		UID:         rec.UID,
		Title:       rec.Title,
		Account:     rec.Account,
		Initial:     rec.Status,
		Final:       rec.Status,
	}
	if queue.IsTerminalStatus(rec.Status) || rec.Status == queue.StatusFailed || rec.Status == queue.StatusSkipped {
		outcome.NoOp = true
		return outcome
	}

	runCtx := services.WithRequestID(
		services.WithAccount(
			services.WithRecordingID(ctx, rec.ID), rec.Account), uuid.NewString())

	for _, st := range o.pipeline.Stages() {
		record := rec.Stage(st.name)
		if record.Status == queue.StageCompleted || record.Status == queue.StageSkipped {
			continue
		}

		stageCtx := services.WithStage(runCtx, st.name)
		stageLogger := logging.WithContext(stageCtx, o.logger)

		if !st.runsFor(rec) {
			record.Status = queue.StageSkipped
			if err := o.store.Update(stageCtx, rec); err != nil {
				outcome.Err = err
				outcome.Final = rec.Status
				return outcome
			}
			o.metrics.StageCompleted(st.name, 0, metrics.OutcomeSkipped)
			continue
		}

		if reason := o.checkPreconditions(st, rec); reason != "" {
			err := services.Wrap(services.ErrPrecondition, st.name, "precondition", reason, nil)
			o.parkForReview(stageCtx, stageLogger, st.name, rec, reason)
			outcome.FailedStage = st.name
			outcome.Err = err
			outcome.Final = rec.Status
			return outcome
		}

		release, err := o.gates.acquire(ctx, st.name)
		if err != nil {
			outcome.Canceled = true
			outcome.Err = err
			return outcome
		}

		execErr := o.runStage(stageCtx, stageLogger, st, rec, record)
		release()

		if execErr != nil {
			if ctx.Err() != nil {
				o.rollbackCanceled(stageLogger, st, rec, record)
				outcome.Canceled = true
				outcome.Err = ctx.Err()
				outcome.Final = rec.Status
				return outcome
			}
			o.handleFailure(stageCtx, stageLogger, st, rec, record, execErr)
			outcome.FailedStage = st.name
			outcome.Err = execErr
			outcome.Final = rec.Status
			return outcome
		}
		outcome.StagesRun = append(outcome.StagesRun, st.name)
	}

	outcome.Final = rec.Status
	outcome.NoOp = len(outcome.StagesRun) == 0
	if outcome.Published() && o.notifier != nil {
		libraryPath, _ := rec.Artifact(queue.ArtifactLibrary)
		if err := o.notifier.NotifyRecordingPublished(ctx, rec.Title, libraryPath); err != nil {
			o.logger.Warn("publish notification failed", logging.Error(err))
		}
	}
	return outcome
}

// checkPreconditions verifies the stage's entry status and required
// artifacts, returning an empty string when the stage may run.
func (o *Orchestrator) checkPreconditions(st pipelineStage, rec *queue.Recording) string {
	entryOK := false
	for _, status := range st.entry {
		if rec.Status == status {
			entryOK = true
			break
		}
	}
	if !entryOK {
		return fmt.Sprintf("status %s not eligible for %s", rec.Status, st.name)
	}
	for _, key := range st.requires {
		path, ok := rec.Artifact(key)
		if !ok || path == "" {
			return fmt.Sprintf("missing %s artifact", key)
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Sprintf("%s artifact unreadable: %s", key, path)
		}
	}
	return ""
}

// runStage transitions the recording into the stage, invokes the executor
// under a heartbeat loop, and applies the success transition. Failures are
// returned for handleFailure to disposition.
func (o *Orchestrator) runStage(ctx context.Context, stageLogger *slog.Logger, st pipelineStage, rec *queue.Recording, record *queue.StageRecord) error {
	started := time.Now().UTC()
	record.Status = queue.StageInProgress
	record.StartedAt = &started
	record.FailedReason = ""
	rec.Status = st.processing
	rec.ClearFailure()
	rec.InitProgress(st.name, st.name+" started")
	rec.LastHeartbeat = &started
	if err := o.store.Update(ctx, rec); err != nil {
		return services.Wrap(services.ErrTransient, st.name, "persist", "failed to mark stage in progress", err)
	}

	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("title", rec.Title))
	o.metrics.StageStarted(st.name)

	if aware, ok := st.executor.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	if o.heartbeat != nil {
		hbWG.Add(1)
		go o.heartbeat.StartLoop(hbCtx, &hbWG, rec.ID)
	}
	artifacts, err := st.executor.Execute(ctx, rec)
	hbCancel()
	hbWG.Wait()

	if err != nil {
		return err
	}

	rec.MergeArtifacts(artifacts)
	completed := time.Now().UTC()
	record.Status = queue.StageCompleted
	record.CompletedAt = &completed
	record.FailedReason = ""
	rec.Status = o.pipeline.doneStatus(st.name, rec)
	rec.ClearFailure()
	rec.LastHeartbeat = nil
	rec.SetProgressComplete(st.name, st.name+" complete")
	if err := o.store.Update(ctx, rec); err != nil {
		return services.Wrap(services.ErrTransient, st.name, "persist", "failed to record stage completion", err)
	}

	o.metrics.StageCompleted(st.name, completed.Sub(started), metrics.OutcomeCompleted)
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", completed.Sub(started)),
		logging.String("status", string(rec.Status)))
	return nil
}

// handleFailure dispositions an executor error: transient failures consume
// retry budget and roll the status back to the last good at-rest value so
// the scheduler re-selects the recording later; everything else, and an
// exhausted budget, parks the recording for review.
func (o *Orchestrator) handleFailure(ctx context.Context, stageLogger *slog.Logger, st pipelineStage, rec *queue.Recording, record *queue.StageRecord, execErr error) {
	kind := services.Kind(execErr)
	retryable := services.Retryable(execErr)
	if retryable {
		record.RetryCount++
	}
	record.Status = queue.StageFailed
	record.FailedReason = execErr.Error()

	budget := o.cfg.Workflow.MaxStageAttempts
	exhausted := retryable && budget > 0 && record.RetryCount >= budget

	if !retryable || exhausted {
		rec.MarkFailed(st.name, execErr.Error())
		rec.NeedsReview = true
		if exhausted {
			rec.ReviewReason = fmt.Sprintf("%s failed %d times, retry budget exhausted", st.name, record.RetryCount)
		} else {
			rec.ReviewReason = fmt.Sprintf("%s failed (%s)", st.name, kind)
		}
	} else {
		rec.Failure = &queue.Failure{Reason: execErr.Error(), Stage: st.name, OccurredAt: time.Now().UTC()}
		rec.ErrorMessage = execErr.Error()
		rec.Status = rec.ResumeStatus()
		rec.LastHeartbeat = nil
		rec.SetProgress(st.name, execErr.Error(), 0)
	}

	if err := o.store.Update(ctx, rec); err != nil {
		stageLogger.Error("failed to persist stage failure", logging.Error(err))
	}

	logging.ErrorWithContext(stageLogger, "stage failed", "stage_failure",
		logging.String("error_kind", kind),
		logging.Int("retry_count", record.RetryCount),
		logging.Bool("parked", rec.Status == queue.StatusFailed),
		logging.Error(execErr))
	o.metrics.StageCompleted(st.name, 0, metrics.OutcomeFailed)

	if rec.Status == queue.StatusFailed && o.notifier != nil {
		if err := o.notifier.NotifyStageFailed(ctx, rec.Title, st.name, execErr.Error()); err != nil {
			stageLogger.Warn("failure notification failed", logging.Error(err))
		}
	}
}

// parkForReview handles a precondition failure: the stage record stays
// pending and untouched, the recording parks as failed for a human.
func (o *Orchestrator) parkForReview(ctx context.Context, stageLogger *slog.Logger, stageName string, rec *queue.Recording, reason string) {
	rec.MarkFailed(stageName, reason)
	rec.NeedsReview = true
	rec.ReviewReason = fmt.Sprintf("%s precondition: %s", stageName, reason)
	if err := o.store.Update(ctx, rec); err != nil {
		stageLogger.Error("failed to persist precondition failure", logging.Error(err))
	}
	logging.ErrorWithContext(stageLogger, "stage precondition failed", "stage_precondition",
		logging.String("reason", reason))
	o.metrics.StageCompleted(stageName, 0, metrics.OutcomeFailed)
	if o.notifier != nil {
		if err := o.notifier.NotifyStageFailed(ctx, rec.Title, stageName, reason); err != nil {
			stageLogger.Warn("failure notification failed", logging.Error(err))
		}
	}
}

// rollbackCanceled undoes the in-progress marks after a cancellation so the
// recording rests at its last good status instead of a stuck -ing value.
// Shutdown may still interrupt before this runs; the startup reclaim and the
// heartbeat sweep cover that window.
func (o *Orchestrator) rollbackCanceled(stageLogger *slog.Logger, st pipelineStage, rec *queue.Recording, record *queue.StageRecord) {
	record.Status = queue.StagePending
	record.StartedAt = nil
	rec.Status = rec.ResumeStatus()
	rec.LastHeartbeat = nil
	rec.ProgressMessage = "interrupted"

	persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.Update(persistCtx, rec); err != nil {
		stageLogger.Warn("failed to persist cancellation rollback", logging.Error(err))
	}
}
