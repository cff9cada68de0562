package analytics

import (
	"context"
	"testing"
	"time"
)

func TestCounterKeyUsesUTCDay(t *testing.T) {
	at := time.Date(2026, 3, 14, 23, 30, 0, 0, time.FixedZone("custom", -7*3600))
	key := counterKey("reel", "engineering", "published", at)
	want := "reel:engineering:published:20260315"
	if key != want {
		t.Fatalf("counterKey = %q, want %q", key, want)
	}
}

func TestNoopSink(t *testing.T) {
	sink := NewNoopSink()
	if err := sink.RecordingPublished(context.Background(), "a", time.Now()); err != nil {
		t.Fatalf("RecordingPublished: %v", err)
	}
	if err := sink.RecordingFailed(context.Background(), "a", "transcode", time.Now()); err != nil {
		t.Fatalf("RecordingFailed: %v", err)
	}
	if err := sink.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
