package testsupport

import (
	"context"
	"testing"
	"time"

	"reel/internal/config"
	"reel/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecording inserts a recording for tests using the provided store.
func NewRecording(t testing.TB, store *queue.Store, account, sourceID, title string) *queue.Recording {
	t.Helper()

	rec, err := store.NewRecording(context.Background(), queue.NewRecordingParams{
		Account:         account,
		SourceID:        sourceID,
		Title:           title,
		RecordedAt:      time.Now().UTC().Add(-time.Hour),
		DurationSeconds: 1800,
		SizeBytes:       1 << 20,
	})
	if err != nil {
		t.Fatalf("store.NewRecording: %v", err)
	}
	return rec
}
