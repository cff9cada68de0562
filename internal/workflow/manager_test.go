package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reel/internal/logging"
	"reel/internal/queue"
	"reel/internal/testsupport"
)

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestManagerProcessesQueueToPublished(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStages(false, false))
	store := testsupport.MustOpenStore(t, cfg)
	stubs := newStubSet(t, cfg)
	mgr := NewManager(cfg, store, logging.NewNop(), stubs.executors())

	rec := testsupport.NewRecording(t, store, "test", "uuid-1", "Weekly Standup")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Stop()
	mgr.ProcessNow()

	waitFor(t, 10*time.Second, func() bool {
		persisted, err := store.GetByID(context.Background(), rec.ID)
		if err != nil {
			return false
		}
		return persisted.Status == queue.StatusPublished
	})
}

func TestManagerStartResetsInterruptedRecordings(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStages(false, false))
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.NewRecording(t, store, "test", "uuid-1", "Weekly Standup")

	rec.Status = queue.StatusAcquiring
	rec.Stage(queue.StageAcquire).Status = queue.StageInProgress
	if err := store.Update(context.Background(), rec); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stubs := newStubSet(t, cfg)
	mgr := NewManager(cfg, store, logging.NewNop(), stubs.executors())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Stop()

	persisted, err := store.GetByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if persisted.Status == queue.StatusAcquiring {
		t.Fatalf("stuck processing status should be reset on start, got %s", persisted.Status)
	}
}

func TestManagerStatusReportsStageHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStages(true, false))
	store := testsupport.MustOpenStore(t, cfg)
	stubs := newStubSet(t, cfg)
	mgr := NewManager(cfg, store, logging.NewNop(), stubs.executors())

	summary := mgr.Status(context.Background())
	if summary.Running {
		t.Fatal("manager not started, should not report running")
	}
	if _, ok := summary.StageHealth[queue.StageAcquire]; !ok {
		t.Fatal("missing acquire stage health")
	}
	if _, ok := summary.StageHealth[queue.StageTranslate]; ok {
		t.Fatal("disabled translate stage should not report health")
	}
	if summary.QueueStats == nil {
		t.Fatal("missing queue stats")
	}
}

func TestManagerRetireRemovesStagingDirectory(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStages(false, false))
	store := testsupport.MustOpenStore(t, cfg)
	stubs := newStubSet(t, cfg)
	mgr := NewManager(cfg, store, logging.NewNop(), stubs.executors())

	rec := testsupport.NewRecording(t, store, "test", "uuid-old", "Ancient")
	rec.Status = queue.StatusPublished
	rec.Stage(queue.StagePublish).Status = queue.StageCompleted
	if err := store.Update(context.Background(), rec); err != nil {
		t.Fatalf("Update: %v", err)
	}
	stagingDir := filepath.Join(cfg.Paths.StagingDir, rec.UID)
	testsupport.WriteFile(t, filepath.Join(stagingDir, "raw.mp4"), 32)

	mgr.retire(context.Background(), time.Now().Add(time.Minute))

	persisted, err := store.GetByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if persisted.Status != queue.StatusRetired {
		t.Fatalf("status = %s, want retired", persisted.Status)
	}
	if _, err := os.Stat(stagingDir); !os.IsNotExist(err) {
		t.Fatalf("staging dir should be removed, stat err = %v", err)
	}
}
