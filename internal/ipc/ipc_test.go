package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"reel/internal/daemon"
	"reel/internal/ipc"
	"reel/internal/logging"
	"reel/internal/queue"
	"reel/internal/testsupport"
	"reel/internal/workflow"
)

type harness struct {
	client  *ipc.Client
	store   *queue.Store
	stopped chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	t.Cleanup(func() { _ = store.Close() })

	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger, workflow.Executors{})
	d, err := daemon.New(cfg, store, logger, mgr, nil, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	stopped := make(chan struct{})
	socketPath := filepath.Join(testsupport.BaseDir(cfg), "reel.sock")
	server, err := ipc.NewServer(context.Background(), socketPath, d, func() { close(stopped) }, logger)
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	server.Serve()
	t.Cleanup(server.Close)

	client, err := ipc.Dial(socketPath)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return &harness{client: client, store: store, stopped: stopped}
}

func TestStatusRoundTrip(t *testing.T) {
	h := newHarness(t)
	testsupport.NewRecording(t, h.store, "alpha", "uuid-1", "Weekly Sync")

	resp, err := h.client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if resp.Running {
		t.Fatal("daemon should not report running before Start")
	}
	if resp.PID <= 0 {
		t.Fatalf("expected pid, got %d", resp.PID)
	}
	if resp.QueueStats[string(queue.StatusInitialized)] != 1 {
		t.Fatalf("unexpected queue stats: %+v", resp.QueueStats)
	}
	if resp.QueueDBPath == "" || resp.LockPath == "" {
		t.Fatal("expected db and lock paths in status")
	}
}

func TestQueueListAndDescribe(t *testing.T) {
	h := newHarness(t)
	rec := testsupport.NewRecording(t, h.store, "alpha", "uuid-1", "Weekly Sync")
	testsupport.NewRecording(t, h.store, "beta", "uuid-2", "Planning")

	list, err := h.client.QueueList(nil)
	if err != nil {
		t.Fatalf("QueueList: %v", err)
	}
	if len(list.Recordings) != 2 {
		t.Fatalf("expected 2 recordings, got %d", len(list.Recordings))
	}

	filtered, err := h.client.QueueList([]string{string(queue.StatusFailed)})
	if err != nil {
		t.Fatalf("QueueList filtered: %v", err)
	}
	if len(filtered.Recordings) != 0 {
		t.Fatalf("expected no failed recordings, got %d", len(filtered.Recordings))
	}

	if _, err := h.client.QueueList([]string{"bogus"}); err == nil {
		t.Fatal("expected error for unknown status filter")
	}

	describe, err := h.client.QueueDescribe(rec.ID)
	if err != nil {
		t.Fatalf("QueueDescribe: %v", err)
	}
	if describe.Recording.Title != "Weekly Sync" || describe.Recording.Account != "alpha" {
		t.Fatalf("unexpected recording: %+v", describe.Recording)
	}
	if describe.Recording.Status != string(queue.StatusInitialized) {
		t.Fatalf("unexpected status %q", describe.Recording.Status)
	}

	if _, err := h.client.QueueDescribe(9999); err == nil {
		t.Fatal("expected error for missing recording")
	}
}

func TestQueueMaintenanceCalls(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec := testsupport.NewRecording(t, h.store, "alpha", "uuid-1", "Weekly Sync")
	record := rec.Stage(queue.StageAcquire)
	record.Status = queue.StageFailed
	record.FailedReason = "download interrupted"
	rec.MarkFailed(queue.StageAcquire, "download interrupted")
	if err := h.store.Update(ctx, rec); err != nil {
		t.Fatalf("update recording: %v", err)
	}

	retried, err := h.client.QueueRetry(nil)
	if err != nil {
		t.Fatalf("QueueRetry: %v", err)
	}
	if retried.Updated != 1 {
		t.Fatalf("expected 1 retried, got %d", retried.Updated)
	}

	health, err := h.client.QueueHealth()
	if err != nil {
		t.Fatalf("QueueHealth: %v", err)
	}
	if health.Total != 1 || health.Failed != 0 {
		t.Fatalf("unexpected health after retry: %+v", health)
	}

	removed, err := h.client.QueueRemove([]int64{rec.ID})
	if err != nil {
		t.Fatalf("QueueRemove: %v", err)
	}
	if removed.Removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed.Removed)
	}

	if _, err := h.client.QueueRemove(nil); err == nil {
		t.Fatal("expected error for empty remove request")
	}

	testsupport.NewRecording(t, h.store, "alpha", "uuid-3", "Standup")
	cleared, err := h.client.QueueClear(ipc.ClearScopeAll)
	if err != nil {
		t.Fatalf("QueueClear: %v", err)
	}
	if cleared.Removed != 1 {
		t.Fatalf("expected 1 cleared, got %d", cleared.Removed)
	}
}

func TestDatabaseHealthRoundTrip(t *testing.T) {
	h := newHarness(t)

	resp, err := h.client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth: %v", err)
	}
	if !resp.DatabaseExists || !resp.DatabaseReadable || !resp.TableExists {
		t.Fatalf("unexpected database health: %+v", resp)
	}
	if !strings.HasSuffix(resp.DBPath, "queue.db") {
		t.Fatalf("unexpected db path %q", resp.DBPath)
	}
}

func TestStopInvokesCallback(t *testing.T) {
	h := newHarness(t)

	resp, err := h.client.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !resp.Stopped {
		t.Fatal("expected stop acknowledgement")
	}
	select {
	case <-h.stopped:
	default:
		t.Fatal("expected stop callback to fire")
	}
}

func TestTestNotificationWithoutTopic(t *testing.T) {
	h := newHarness(t)

	resp, err := h.client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if resp.Sent {
		t.Fatal("expected notification not sent without topic")
	}
}
