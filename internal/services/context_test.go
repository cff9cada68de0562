package services_test

import (
	"context"
	"testing"

	"reel/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRecordingID(ctx, 42)
	ctx = services.WithStage(ctx, "transcode")
	ctx = services.WithAccount(ctx, "acct-main")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.RecordingIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected recording id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "transcode" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if account, ok := services.AccountFromContext(ctx); !ok || account != "acct-main" {
		t.Fatalf("unexpected account: %v %v", account, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
