package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reel/internal/logging"
	"reel/internal/queue"
	"reel/internal/services"
	"reel/internal/testsupport"
)

func TestRunBatchIsolatesFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStages(false, false))
	store := testsupport.MustOpenStore(t, cfg)
	stubs := newStubSet(t, cfg)

	good := stubs.transcode.fn
	stubs.transcode.fn = func(ctx context.Context, rec *queue.Recording) (map[string]string, error) {
		if rec.SourceID == "uuid-bad" {
			return nil, services.Wrap(services.ErrFatal, "transcode", "ffmpeg", "corrupt input", nil)
		}
		return good(ctx, rec)
	}

	orch := newTestOrchestrator(t, cfg, store, stubs.executors())
	sched := NewScheduler(orch, logging.NewNop(), nil)

	bad := testsupport.NewRecording(t, store, "test", "uuid-bad", "Broken")
	ok := testsupport.NewRecording(t, store, "test", "uuid-ok", "Fine")

	outcomes := sched.RunBatch(context.Background(), []*queue.Recording{bad, ok})
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes))
	}
	if outcomes[0].Err == nil {
		t.Fatal("bad recording should fail")
	}
	if outcomes[1].Err != nil {
		t.Fatalf("good recording failed: %v", outcomes[1].Err)
	}
	if outcomes[1].Final != queue.StatusPublished {
		t.Fatalf("good recording final = %s", outcomes[1].Final)
	}

	persisted, err := store.GetByID(context.Background(), ok.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if persisted.Status != queue.StatusPublished {
		t.Fatalf("good recording persisted as %s", persisted.Status)
	}
}

func TestGateBoundsStageConcurrency(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStages(false, false),
		testsupport.WithSlots(0, 1, 0, 0, 0))
	store := testsupport.MustOpenStore(t, cfg)
	stubs := newStubSet(t, cfg)

	var active, peak atomic.Int64
	good := stubs.transcode.fn
	stubs.transcode.fn = func(ctx context.Context, rec *queue.Recording) (map[string]string, error) {
		now := active.Add(1)
		for {
			prev := peak.Load()
			if now <= prev || peak.CompareAndSwap(prev, now) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		return good(ctx, rec)
	}

	pipeline := NewPipeline(cfg, stubs.executors())
	orch := NewOrchestrator(cfg, store, pipeline, newGateSet(cfg.Workflow), nil, logging.NewNop(), nil, nil)
	sched := NewScheduler(orch, logging.NewNop(), nil)

	recs := []*queue.Recording{
		testsupport.NewRecording(t, store, "test", "uuid-1", "One"),
		testsupport.NewRecording(t, store, "test", "uuid-2", "Two"),
		testsupport.NewRecording(t, store, "test", "uuid-3", "Three"),
	}
	outcomes := sched.RunBatch(context.Background(), recs)
	for i, outcome := range outcomes {
		if outcome.Err != nil {
			t.Fatalf("recording %d failed: %v", i, outcome.Err)
		}
	}
	if peak.Load() > 1 {
		t.Fatalf("transcode peak concurrency = %d, want 1", peak.Load())
	}
}

func TestRunBatchSkipsRecordingsAlreadyInFlight(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStages(false, false))
	store := testsupport.MustOpenStore(t, cfg)
	stubs := newStubSet(t, cfg)

	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	good := stubs.acquire.fn
	stubs.acquire.fn = func(ctx context.Context, rec *queue.Recording) (map[string]string, error) {
		once.Do(func() { close(entered) })
		<-release
		return good(ctx, rec)
	}

	orch := newTestOrchestrator(t, cfg, store, stubs.executors())
	sched := NewScheduler(orch, logging.NewNop(), nil)
	rec := testsupport.NewRecording(t, store, "test", "uuid-1", "Weekly Standup")

	done := make(chan []Outcome, 1)
	go func() {
		done <- sched.RunBatch(context.Background(), []*queue.Recording{rec})
	}()
	<-entered

	snapshot := *rec
	overlapping := sched.RunBatch(context.Background(), []*queue.Recording{&snapshot})
	if !overlapping[0].NoOp {
		t.Fatalf("overlapping batch should skip in-flight recording, got %+v", overlapping[0])
	}

	close(release)
	first := <-done
	if first[0].Err != nil {
		t.Fatalf("first batch failed: %v", first[0].Err)
	}
	if sched.InFlight() != 0 {
		t.Fatalf("in-flight = %d after batches drained", sched.InFlight())
	}
}

func TestProgressSinkNeverBlocks(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStages(false, false))
	store := testsupport.MustOpenStore(t, cfg)
	stubs := newStubSet(t, cfg)
	orch := newTestOrchestrator(t, cfg, store, stubs.executors())
	sched := NewScheduler(orch, logging.NewNop(), nil)

	// Full, never-drained channel: sends must be dropped, not block the batch.
	sink := make(chan Outcome)
	sched.SetProgressSink(sink)

	rec := testsupport.NewRecording(t, store, "test", "uuid-1", "Weekly Standup")
	outcomes := sched.RunBatch(context.Background(), []*queue.Recording{rec})
	if outcomes[0].Err != nil {
		t.Fatalf("RunBatch: %v", outcomes[0].Err)
	}
}

func TestGateAcquireRespectsCancellation(t *testing.T) {
	gates := newGateSet(testsupport.NewConfig(t, testsupport.WithSlots(1, 0, 0, 0, 0)).Workflow)

	release, err := gates.acquire(context.Background(), queue.StageAcquire)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := gates.acquire(ctx, queue.StageAcquire); err == nil {
		t.Fatal("second acquire should fail once ctx expires")
	}

	release()
	release2, err := gates.acquire(context.Background(), queue.StageAcquire)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}
