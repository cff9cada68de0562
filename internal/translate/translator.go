// Package translate renders the transcript in the configured target language.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/queue"
	"reel/internal/services"
	"reel/internal/stage"
)

// Renderer is the translation service surface the executor needs.
type Renderer interface {
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
}

// Translator turns the transcript artifact into a translated one.
type Translator struct {
	cfg    *config.Config
	store  *queue.Store
	client Renderer
	logger *slog.Logger
}

// NewTranslator constructs the translate executor.
func NewTranslator(cfg *config.Config, store *queue.Store, client Renderer, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Translator{
		cfg:    cfg,
		store:  store,
		client: client,
		logger: logger.With(logging.String(logging.FieldComponent, "translate")),
	}
}

// SetLogger replaces the executor's logger.
func (t *Translator) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.logger = logger.With(logging.String(logging.FieldComponent, "translate"))
	}
}

// Execute translates the staged transcript. A translation already present
// from an interrupted earlier attempt is reused.
func (t *Translator) Execute(ctx context.Context, rec *queue.Recording) (map[string]string, error) {
	logger := logging.WithContext(ctx, t.logger)

	transcriptPath, ok := rec.Artifact(queue.ArtifactTranscript)
	if !ok {
		return nil, services.Wrap(services.ErrPrecondition, queue.StageTranslate, "input",
			"transcript artifact is missing", nil)
	}
	transcript, err := os.ReadFile(transcriptPath)
	if err != nil {
		return nil, services.Wrap(services.ErrPrecondition, queue.StageTranslate, "input",
			fmt.Sprintf("transcript %s is not readable", transcriptPath), err)
	}

	outputPath := filepath.Join(t.cfg.Paths.StagingDir, rec.UID, "translation.txt")
	if info, err := os.Stat(outputPath); err == nil && info.Size() > 0 {
		logger.Info("translation already staged, reusing", logging.String("path", outputPath))
		return map[string]string{queue.ArtifactTranslation: outputPath}, nil
	}

	rec.SetProgress("Translating", fmt.Sprintf("Translating into %s", t.cfg.Translate.TargetLanguage), 10)
	if t.store != nil {
		if err := t.store.Update(ctx, rec); err != nil {
			logger.Warn("persist progress failed", logging.Error(err))
		}
	}

	translated, err := t.client.Translate(ctx, string(transcript), t.cfg.Translate.TargetLanguage)
	if err != nil {
		return nil, err
	}

	if err := writeAtomic(outputPath, []byte(translated+"\n")); err != nil {
		return nil, services.Wrap(services.ErrFatal, queue.StageTranslate, "write", "write translation", err)
	}

	rec.SetProgress("Translating", "Translation ready", 100)
	logger.Info("translation written", logging.String("path", outputPath))
	return map[string]string{queue.ArtifactTranslation: outputPath}, nil
}

// HealthCheck verifies the translation endpoint is configured.
func (t *Translator) HealthCheck(ctx context.Context) stage.Health {
	if t.cfg.Translate.APIKey == "" {
		return stage.Unhealthy("translate", "translation api key is not configured")
	}
	if t.cfg.Translate.TargetLanguage == "" {
		return stage.Unhealthy("translate", "target language is not configured")
	}
	return stage.Healthy("translate")
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
