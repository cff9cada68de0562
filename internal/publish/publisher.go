// Package publish moves finished artifacts into the library tree and tells
// the portal to rescan.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"reel/internal/config"
	"reel/internal/fileutil"
	"reel/internal/logging"
	"reel/internal/naming"
	"reel/internal/queue"
	"reel/internal/services"
	"reel/internal/services/portal"
	"reel/internal/stage"
)

// Publisher lays recordings out under the library root.
type Publisher struct {
	cfg    *config.Config
	store  *queue.Store
	portal portal.Service
	logger *slog.Logger
}

// NewPublisher constructs the publish executor.
func NewPublisher(cfg *config.Config, store *queue.Store, portalSvc portal.Service, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if portalSvc == nil {
		portalSvc = portal.NewService(cfg)
	}
	return &Publisher{
		cfg:    cfg,
		store:  store,
		portal: portalSvc,
		logger: logger.With(logging.String(logging.FieldComponent, "publish")),
	}
}

// SetLogger replaces the executor's logger.
func (p *Publisher) SetLogger(logger *slog.Logger) {
	if logger != nil {
		p.logger = logger.With(logging.String(logging.FieldComponent, "publish"))
	}
}

// metadata is the sidecar written next to the published media.
type metadata struct {
	UID             string    `json:"uid"`
	SourceID        string    `json:"source_id"`
	Account         string    `json:"account"`
	Title           string    `json:"title"`
	HostEmail       string    `json:"host_email,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
	DurationSeconds int       `json:"duration_seconds"`
	PublishedAt     time.Time `json:"published_at"`
	Files           []string  `json:"files"`
}

// Execute copies the media file and any enrichment artifacts into
// <library>/<account>/<YYYY>/<MM>/<title-slug>/ and writes a metadata
// sidecar. Destination files whose size already matches are kept as-is, so a
// re-entered publish finishes what an interrupted run started.
func (p *Publisher) Execute(ctx context.Context, rec *queue.Recording) (map[string]string, error) {
	logger := logging.WithContext(ctx, p.logger)

	mediaPath, ok := rec.Artifact(queue.ArtifactMedia)
	if !ok {
		return nil, services.Wrap(services.ErrPrecondition, queue.StagePublish, "input",
			"media artifact is missing", nil)
	}
	if _, err := os.Stat(mediaPath); err != nil {
		return nil, services.Wrap(services.ErrPrecondition, queue.StagePublish, "input",
			fmt.Sprintf("media file %s is not readable", mediaPath), err)
	}

	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = rec.CreatedAt
	}
	slug := naming.Slug(rec.Title)
	destDir := filepath.Join(
		p.cfg.Paths.LibraryDir,
		naming.AccountFolder(rec.Account),
		recordedAt.UTC().Format("2006"),
		recordedAt.UTC().Format("01"),
		slug,
	)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrFatal, queue.StagePublish, "layout", "create library directory", err)
	}

	rec.SetProgress("Publishing", "Copying into library", 20)
	if p.store != nil {
		if err := p.store.Update(ctx, rec); err != nil {
			logger.Warn("persist progress failed", logging.Error(err))
		}
	}

	var published []string
	mediaDest := filepath.Join(destDir, slug+filepath.Ext(mediaPath))
	if err := p.placeFile(mediaPath, mediaDest); err != nil {
		return nil, services.Wrap(services.ErrTransient, queue.StagePublish, "copy", "copy media into library", err)
	}
	published = append(published, filepath.Base(mediaDest))

	for artifact, name := range map[string]string{
		queue.ArtifactTranscript:  "transcript.txt",
		queue.ArtifactTranslation: "translation.txt",
	} {
		src, ok := rec.Artifact(artifact)
		if !ok {
			continue
		}
		dest := filepath.Join(destDir, name)
		if err := p.placeFile(src, dest); err != nil {
			return nil, services.Wrap(services.ErrTransient, queue.StagePublish, "copy",
				fmt.Sprintf("copy %s into library", name), err)
		}
		published = append(published, name)
	}

	meta := metadata{
		UID:             rec.UID,
		SourceID:        rec.SourceID,
		Account:         rec.Account,
		Title:           rec.Title,
		HostEmail:       rec.HostEmail,
		RecordedAt:      recordedAt.UTC(),
		DurationSeconds: rec.DurationSeconds,
		PublishedAt:     time.Now().UTC(),
		Files:           published,
	}
	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, services.Wrap(services.ErrFatal, queue.StagePublish, "metadata", "encode metadata", err)
	}
	if err := os.WriteFile(filepath.Join(destDir, "metadata.json"), encoded, 0o644); err != nil {
		return nil, services.Wrap(services.ErrFatal, queue.StagePublish, "metadata", "write metadata sidecar", err)
	}

	if p.portal.Enabled() {
		rec.SetProgress("Publishing", "Refreshing portal", 90)
		if err := p.portal.Refresh(ctx); err != nil {
			// The recording is already in place; a missed rescan fixes
			// itself on the portal's next scheduled scan.
			logger.Warn("portal refresh failed", logging.Error(err))
		}
	}

	rec.SetProgress("Publishing", "Published", 100)
	logger.Info("recording published",
		logging.String("library_dir", destDir),
		logging.Int("files", len(published)))
	return map[string]string{queue.ArtifactLibrary: destDir}, nil
}

// HealthCheck verifies the library root is writable.
func (p *Publisher) HealthCheck(ctx context.Context) stage.Health {
	if err := os.MkdirAll(p.cfg.Paths.LibraryDir, 0o755); err != nil {
		return stage.Unhealthy("publish", fmt.Sprintf("library directory unavailable: %v", err))
	}
	return stage.Healthy("publish")
}

// placeFile copies src to dest unless a matching file is already there.
// Overwrite behavior follows configuration.
func (p *Publisher) placeFile(src, dest string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if destInfo, err := os.Stat(dest); err == nil {
		if destInfo.Size() == srcInfo.Size() {
			return nil
		}
		if !p.cfg.Publish.OverwriteExisting {
			return fmt.Errorf("destination %s exists with different size", dest)
		}
	}
	return fileutil.CopyFileVerified(src, dest)
}
