// Package transcribe produces a text transcript of the recording through the
// hosted speech-to-text service.
package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/queue"
	"reel/internal/services"
	"reel/internal/services/speech"
	"reel/internal/stage"
)

// Recognizer is the speech service surface the executor needs.
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath string) (*speech.Transcript, error)
}

// Transcriber uploads the media file and writes transcript artifacts.
type Transcriber struct {
	cfg    *config.Config
	store  *queue.Store
	client Recognizer
	logger *slog.Logger
}

// NewTranscriber constructs the transcribe executor.
func NewTranscriber(cfg *config.Config, store *queue.Store, client Recognizer, logger *slog.Logger) *Transcriber {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Transcriber{
		cfg:    cfg,
		store:  store,
		client: client,
		logger: logger.With(logging.String(logging.FieldComponent, "transcribe")),
	}
}

// SetLogger replaces the executor's logger.
func (t *Transcriber) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.logger = logger.With(logging.String(logging.FieldComponent, "transcribe"))
	}
}

// Execute sends the media file to the speech service and writes
// transcript.txt plus a segments sidecar. An existing transcript from an
// interrupted earlier attempt is reused.
func (t *Transcriber) Execute(ctx context.Context, rec *queue.Recording) (map[string]string, error) {
	logger := logging.WithContext(ctx, t.logger)

	mediaPath, ok := rec.Artifact(queue.ArtifactMedia)
	if !ok {
		return nil, services.Wrap(services.ErrPrecondition, queue.StageTranscribe, "input",
			"media artifact is missing", nil)
	}
	if _, err := os.Stat(mediaPath); err != nil {
		return nil, services.Wrap(services.ErrPrecondition, queue.StageTranscribe, "input",
			fmt.Sprintf("media file %s is not readable", mediaPath), err)
	}

	textPath := filepath.Join(t.cfg.Paths.StagingDir, rec.UID, "transcript.txt")
	segmentsPath := filepath.Join(t.cfg.Paths.StagingDir, rec.UID, "transcript.segments.json")
	if info, err := os.Stat(textPath); err == nil && info.Size() > 0 {
		logger.Info("transcript already staged, reusing", logging.String("path", textPath))
		return map[string]string{queue.ArtifactTranscript: textPath}, nil
	}

	rec.SetProgress("Transcribing", "Uploading audio", 10)
	if t.store != nil {
		if err := t.store.Update(ctx, rec); err != nil {
			logger.Warn("persist progress failed", logging.Error(err))
		}
	}

	transcript, err := t.client.Transcribe(ctx, mediaPath)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(transcript.Text)
	if text == "" {
		var lines []string
		for _, segment := range transcript.Segments {
			lines = append(lines, strings.TrimSpace(segment.Text))
		}
		text = strings.Join(lines, "\n")
	}
	if err := writeAtomic(textPath, []byte(text+"\n")); err != nil {
		return nil, services.Wrap(services.ErrFatal, queue.StageTranscribe, "write", "write transcript", err)
	}
	if len(transcript.Segments) > 0 {
		encoded, err := json.MarshalIndent(transcript.Segments, "", "  ")
		if err == nil {
			if err := writeAtomic(segmentsPath, encoded); err != nil {
				logger.Warn("write segments sidecar failed", logging.Error(err))
			}
		}
	}

	rec.SetProgress("Transcribing", "Transcript ready", 100)
	logger.Info("transcript written",
		logging.String("path", textPath),
		logging.Int("segments", len(transcript.Segments)))
	return map[string]string{queue.ArtifactTranscript: textPath}, nil
}

// HealthCheck verifies the speech endpoint is configured.
func (t *Transcriber) HealthCheck(ctx context.Context) stage.Health {
	if t.cfg.Transcribe.APIKey == "" {
		return stage.Unhealthy("transcribe", "transcription api key is not configured")
	}
	return stage.Healthy("transcribe")
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".partial"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
