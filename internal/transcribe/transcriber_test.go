package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"reel/internal/queue"
	"reel/internal/services"
	"reel/internal/services/speech"
	"reel/internal/testsupport"
)

type stubRecognizer struct {
	transcript *speech.Transcript
	err        error
	calls      int
}

func (s *stubRecognizer) Transcribe(ctx context.Context, audioPath string) (*speech.Transcript, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.transcript, nil
}

func TestExecuteWritesTranscript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.NewRecording(t, store, "test", "uuid-1", "Standup")
	mediaPath := filepath.Join(cfg.Paths.StagingDir, rec.UID, "media.mp4")
	testsupport.WriteFile(t, mediaPath, 64)
	rec.MergeArtifacts(map[string]string{queue.ArtifactMedia: mediaPath})
	if err := store.Update(context.Background(), rec); err != nil {
		t.Fatalf("update recording: %v", err)
	}

	recognizer := &stubRecognizer{transcript: &speech.Transcript{
		Text:     "hello world",
		Language: "en",
		Segments: []speech.Segment{{Start: 0, End: 1.5, Text: "hello world"}},
	}}
	transcriber := NewTranscriber(cfg, store, recognizer, nil)

	artifacts, err := transcriber.Execute(context.Background(), rec)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	textPath := artifacts[queue.ArtifactTranscript]
	content, err := os.ReadFile(textPath)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if string(content) != "hello world\n" {
		t.Errorf("transcript = %q", content)
	}
	segmentsPath := filepath.Join(cfg.Paths.StagingDir, rec.UID, "transcript.segments.json")
	if _, err := os.Stat(segmentsPath); err != nil {
		t.Errorf("segments sidecar missing: %v", err)
	}

	// A second run reuses the staged transcript without another upload.
	if _, err := transcriber.Execute(context.Background(), rec); err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}
	if recognizer.calls != 1 {
		t.Errorf("recognizer calls = %d, want 1", recognizer.calls)
	}
}

func TestExecuteMissingMediaIsPrecondition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.NewRecording(t, store, "test", "uuid-1", "Standup")

	transcriber := NewTranscriber(cfg, store, &stubRecognizer{}, nil)
	_, err := transcriber.Execute(context.Background(), rec)
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("error = %v, want precondition error", err)
	}
}

func TestExecutePropagatesServiceError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.NewRecording(t, store, "test", "uuid-1", "Standup")
	mediaPath := filepath.Join(cfg.Paths.StagingDir, rec.UID, "media.mp4")
	testsupport.WriteFile(t, mediaPath, 64)
	rec.MergeArtifacts(map[string]string{queue.ArtifactMedia: mediaPath})
	if err := store.Update(context.Background(), rec); err != nil {
		t.Fatalf("update recording: %v", err)
	}

	wantErr := services.Wrap(services.ErrTransient, "transcribe", "speech", "endpoint unavailable", nil)
	transcriber := NewTranscriber(cfg, store, &stubRecognizer{err: wantErr}, nil)
	_, err := transcriber.Execute(context.Background(), rec)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("error = %v, want transient error", err)
	}
}

func TestHealthCheckRequiresAPIKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcribe.APIKey = ""
	transcriber := NewTranscriber(cfg, nil, &stubRecognizer{}, nil)
	if health := transcriber.HealthCheck(context.Background()); health.Ready {
		t.Fatalf("health = %+v, want not ready", health)
	}
}
