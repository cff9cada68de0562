package queue_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"reel/internal/queue"
	"reel/internal/testsupport"
)

func TestOpenInitializesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	rec, err := store.NewRecording(ctx, queue.NewRecordingParams{
		Account:         "corp",
		SourceID:        "meet-100",
		Title:           "Weekly Sync",
		RecordedAt:      time.Now().UTC().Add(-2 * time.Hour),
		DurationSeconds: 3600,
		SizeBytes:       4 << 20,
	})
	if err != nil {
		t.Fatalf("NewRecording failed: %v", err)
	}
	if rec.ID == 0 {
		t.Fatal("expected recording ID to be assigned")
	}
	if rec.UID == "" {
		t.Fatal("expected uid to be assigned")
	}
	if rec.Status != queue.StatusInitialized {
		t.Fatalf("expected initialized status, got %s", rec.Status)
	}

	fetched, err := store.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.Title != "Weekly Sync" {
		t.Fatalf("unexpected fetched recording: %#v", fetched)
	}

	bySource, err := store.FindBySource(ctx, "corp", "meet-100")
	if err != nil {
		t.Fatalf("FindBySource failed: %v", err)
	}
	if bySource == nil || bySource.ID != rec.ID {
		t.Fatalf("expected to find inserted recording, got %#v", bySource)
	}

	byUID, err := store.GetByUID(ctx, rec.UID)
	if err != nil {
		t.Fatalf("GetByUID failed: %v", err)
	}
	if byUID == nil || byUID.ID != rec.ID {
		t.Fatalf("expected uid lookup to match, got %#v", byUID)
	}
}

func TestDuplicateSourceRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	params := queue.NewRecordingParams{Account: "corp", SourceID: "meet-dup", Title: "First"}
	if _, err := store.NewRecording(ctx, params); err != nil {
		t.Fatalf("NewRecording failed: %v", err)
	}
	if _, err := store.NewRecording(ctx, params); err == nil {
		t.Fatal("expected unique constraint error for duplicate source")
	}
}

func TestStageRecordsAndArtifactsRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	rec := testsupport.NewRecording(t, store, "corp", "meet-200", "Roundtrip")

	started := time.Now().UTC().Truncate(time.Second)
	acquire := rec.Stage(queue.StageAcquire)
	acquire.Status = queue.StageCompleted
	acquire.StartedAt = &started
	acquire.CompletedAt = &started
	transcode := rec.Stage(queue.StageTranscode)
	transcode.Status = queue.StageFailed
	transcode.RetryCount = 2
	transcode.FailedReason = "encoder exited with status 1"
	rec.MergeArtifacts(map[string]string{queue.ArtifactRaw: "r1.bin"})
	rec.Status = queue.StatusAcquired

	if err := store.Update(ctx, rec); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.StageStatusFor(queue.StageAcquire) != queue.StageCompleted {
		t.Fatalf("expected acquire completed, got %s", fetched.StageStatusFor(queue.StageAcquire))
	}
	fetchedTranscode := fetched.Stage(queue.StageTranscode)
	if fetchedTranscode.Status != queue.StageFailed || fetchedTranscode.RetryCount != 2 {
		t.Fatalf("unexpected transcode record: %#v", fetchedTranscode)
	}
	if fetchedTranscode.FailedReason != "encoder exited with status 1" {
		t.Fatalf("unexpected failed reason: %q", fetchedTranscode.FailedReason)
	}
	if raw, ok := fetched.Artifact(queue.ArtifactRaw); !ok || raw != "r1.bin" {
		t.Fatalf("expected raw artifact r1.bin, got %q", raw)
	}
	if fetched.StageStatusFor(queue.StagePublish) != queue.StagePending {
		t.Fatal("expected untouched stage to report pending")
	}
}

func TestMergeArtifactsLastWriteWins(t *testing.T) {
	rec := &queue.Recording{}
	rec.MergeArtifacts(map[string]string{queue.ArtifactRaw: "r1.bin", queue.ArtifactMedia: "m1.mp4"})
	rec.MergeArtifacts(map[string]string{queue.ArtifactMedia: "m2.mp4"})

	if media, _ := rec.Artifact(queue.ArtifactMedia); media != "m2.mp4" {
		t.Fatalf("expected media overwrite, got %q", media)
	}
	if raw, _ := rec.Artifact(queue.ArtifactRaw); raw != "r1.bin" {
		t.Fatalf("expected raw preserved, got %q", raw)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	cases := []struct {
		name          string
		initialStatus queue.Status
		expected      queue.Status
	}{
		{"acquiring", queue.StatusAcquiring, queue.StatusInitialized},
		{"transforming", queue.StatusTransforming, queue.StatusAcquired},
		{"enriching", queue.StatusEnriching, queue.StatusTransformed},
		{"publishing", queue.StatusPublishing, queue.StatusEnriched},
	}
	var ids []int64
	for i, tc := range cases {
		rec := testsupport.NewRecording(t, store, "corp", fmt.Sprintf("meet-reset-%d", i), tc.name)
		rec.Status = tc.initialStatus
		now := time.Now().UTC()
		rec.LastHeartbeat = &now
		if err := store.Update(ctx, rec); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		ids = append(ids, rec.ID)
	}

	count, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing failed: %v", err)
	}
	if int(count) != len(cases) {
		t.Fatalf("expected %d recordings reset, got %d", len(cases), count)
	}

	for idx, tc := range cases {
		updated, err := store.GetByID(ctx, ids[idx])
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if updated.Status != tc.expected {
			t.Fatalf("%s: expected status %s, got %s", tc.name, tc.expected, updated.Status)
		}
		if updated.LastHeartbeat != nil {
			t.Fatalf("%s: expected heartbeat cleared", tc.name)
		}
	}
}

func TestReclaimStaleProcessingHonorsTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	stale := testsupport.NewRecording(t, store, "corp", "meet-stale", "Stale")
	stale.Status = queue.StatusPublishing
	old := time.Now().UTC().Add(-10 * time.Minute)
	stale.LastHeartbeat = &old
	if err := store.Update(ctx, stale); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	fresh := testsupport.NewRecording(t, store, "corp", "meet-fresh", "Fresh")
	fresh.Status = queue.StatusPublishing
	now := time.Now().UTC()
	fresh.LastHeartbeat = &now
	if err := store.Update(ctx, fresh); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	cutoff := time.Now().Add(-time.Minute)
	count, err := store.ReclaimStaleProcessing(ctx, cutoff, queue.StatusTransition{
		From: queue.StatusPublishing,
		To:   queue.StatusTransformed,
	})
	if err != nil {
		t.Fatalf("ReclaimStaleProcessing failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one reclaimed recording, got %d", count)
	}

	updated, err := store.GetByID(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.StatusTransformed {
		t.Fatalf("expected custom rollback target, got %s", updated.Status)
	}
	untouched, err := store.GetByID(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if untouched.Status != queue.StatusPublishing {
		t.Fatalf("expected fresh recording untouched, got %s", untouched.Status)
	}
}

func TestRetryFailedResetsToMilestone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	rec := testsupport.NewRecording(t, store, "corp", "meet-retry", "Retry Me")
	rec.Stage(queue.StageAcquire).Status = queue.StageCompleted
	rec.Stage(queue.StageTranscode).Status = queue.StageCompleted
	publish := rec.Stage(queue.StagePublish)
	publish.Status = queue.StageFailed
	publish.RetryCount = 3
	publish.FailedReason = "portal unreachable"
	rec.MarkFailed(queue.StagePublish, "portal unreachable")
	rec.NeedsReview = true
	rec.ReviewReason = "retry budget exhausted"
	if err := store.Update(ctx, rec); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	count, err := store.RetryFailed(ctx, rec.ID)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one retried recording, got %d", count)
	}

	updated, err := store.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.StatusTransformed {
		t.Fatalf("expected resume at transformed, got %s", updated.Status)
	}
	refreshed := updated.Stage(queue.StagePublish)
	if refreshed.Status != queue.StagePending || refreshed.RetryCount != 0 || refreshed.FailedReason != "" {
		t.Fatalf("expected publish record reset, got %#v", refreshed)
	}
	if updated.StageStatusFor(queue.StageTranscode) != queue.StageCompleted {
		t.Fatal("expected completed stages preserved")
	}
	if updated.NeedsReview || updated.ReviewReason != "" || updated.Failure != nil {
		t.Fatalf("expected failure state cleared, got review=%v reason=%q failure=%#v",
			updated.NeedsReview, updated.ReviewReason, updated.Failure)
	}
}

func TestReconsiderSkipped(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	skipped, err := store.NewSkippedRecording(ctx, queue.NewRecordingParams{
		Account:  "corp",
		SourceID: "meet-short",
		Title:    "Too Short",
	}, "duration below minimum")
	if err != nil {
		t.Fatalf("NewSkippedRecording failed: %v", err)
	}
	if skipped.Status != queue.StatusSkipped || skipped.SkipReason == "" {
		t.Fatalf("unexpected skipped recording: %#v", skipped)
	}

	active := testsupport.NewRecording(t, store, "corp", "meet-active", "Active")

	count, err := store.ReconsiderSkipped(ctx)
	if err != nil {
		t.Fatalf("ReconsiderSkipped failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one reconsidered recording, got %d", count)
	}

	updated, err := store.GetByID(ctx, skipped.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.StatusInitialized || updated.SkipReason != "" {
		t.Fatalf("expected initialized with cleared reason, got %#v", updated)
	}

	other, err := store.GetByID(ctx, active.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if other.Status != queue.StatusInitialized {
		t.Fatalf("expected untouched recording to stay initialized, got %s", other.Status)
	}
}

func TestStatsAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first := testsupport.NewRecording(t, store, "corp", "meet-a", "A")
	second := testsupport.NewRecording(t, store, "corp", "meet-b", "B")
	second.Status = queue.StatusPublished
	if err := store.Update(ctx, second); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	third := testsupport.NewRecording(t, store, "corp", "meet-c", "C")
	third.Status = queue.StatusEnriching
	if err := store.Update(ctx, third); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	_ = first

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[queue.StatusInitialized] != 1 || stats[queue.StatusPublished] != 1 || stats[queue.StatusEnriching] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 3 || health.Initialized != 1 || health.Processing != 1 || health.Published != 1 {
		t.Fatalf("unexpected health summary: %#v", health)
	}
}

func TestMigrationsApplyOnceAcrossReopens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	rec := testsupport.NewRecording(t, store, "corp", "meet-100", "Weekly Sync")
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	survived, err := reopened.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID after reopen failed: %v", err)
	}
	if survived == nil || survived.Title != "Weekly Sync" {
		t.Fatalf("recording lost across reopen: %#v", survived)
	}

	health, err := reopened.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if health.SchemaVersion == "" || health.SchemaVersion == "unknown" || health.SchemaVersion == "none" {
		t.Fatalf("schema version not recorded: %q", health.SchemaVersion)
	}
	if !health.TableExists {
		t.Fatal("recordings table missing after reopen")
	}
}

func TestRetireOlderThan(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	rec := testsupport.NewRecording(t, store, "corp", "meet-old", "Old")
	rec.Status = queue.StatusPublished
	rec.MergeArtifacts(map[string]string{queue.ArtifactLibrary: "/library/old.mp4"})
	if err := store.Update(ctx, rec); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	retired, err := store.RetireOlderThan(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("RetireOlderThan failed: %v", err)
	}
	if len(retired) != 1 || retired[0].ID != rec.ID {
		t.Fatalf("unexpected retired set: %#v", retired)
	}

	updated, err := store.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.StatusRetired || updated.RetiredAt == nil {
		t.Fatalf("expected retired recording, got %#v", updated)
	}

	again, err := store.RetireOlderThan(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("RetireOlderThan failed: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no further retirements, got %d", len(again))
	}
}
