package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reel/internal/queue"
	"reel/internal/services"
	"reel/internal/testsupport"
)

func TestBuildArgs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcode.VideoCodec = "libx264"
	cfg.Transcode.AudioCodec = "aac"
	cfg.Transcode.Preset = "medium"
	cfg.Transcode.CRF = 23

	args := buildArgs(cfg, "/in/raw.mp4", "/out/media.mp4")
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"-i /in/raw.mp4",
		"-c:v libx264",
		"-preset medium",
		"-crf 23",
		"-c:a aac",
		"-progress pipe:1",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
	if args[len(args)-1] != "/out/media.mp4" {
		t.Errorf("output path must be last, got %q", args[len(args)-1])
	}
}

func TestReadProgress(t *testing.T) {
	input := strings.NewReader(strings.Join([]string{
		"frame=100",
		"out_time_us=30000000",
		"speed=2.5x",
		"progress=continue",
		"out_time_us=60000000",
		"speed=2.4x",
		"progress=end",
	}, "\n"))

	var updates []progressUpdate
	if err := readProgress(input, func(u progressUpdate) { updates = append(updates, u) }); err != nil {
		t.Fatalf("readProgress failed: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(updates))
	}
	if updates[0].OutTimeSeconds != 30 || updates[0].Speed != 2.5 || updates[0].Done {
		t.Errorf("first update = %+v", updates[0])
	}
	if updates[1].OutTimeSeconds != 60 || !updates[1].Done {
		t.Errorf("second update = %+v", updates[1])
	}
}

func writeFakeFFmpeg(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	return path
}

func TestExecuteRunsFFmpeg(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.NewRecording(t, store, "test", "uuid-1", "Standup")
	rawPath := filepath.Join(cfg.Paths.StagingDir, rec.UID, "raw.mp4")
	testsupport.WriteFile(t, rawPath, 64)
	rec.MergeArtifacts(map[string]string{queue.ArtifactRaw: rawPath})
	rec.DurationSeconds = 60
	if err := store.Update(context.Background(), rec); err != nil {
		t.Fatalf("update recording: %v", err)
	}

	fake := writeFakeFFmpeg(t, `#!/bin/sh
out=""
for a in "$@"; do out="$a"; done
echo "out_time_us=30000000"
echo "speed=2.0x"
echo "progress=continue"
printf 'fake media' > "$out"
echo "progress=end"
exit 0
`)

	transcoder := NewTranscoder(cfg, store, nil)
	defer transcoder.SetBinaryForTests(fake)()

	artifacts, err := transcoder.Execute(context.Background(), rec)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	mediaPath := artifacts[queue.ArtifactMedia]
	if mediaPath == "" {
		t.Fatalf("missing media artifact: %v", artifacts)
	}
	if got, err := os.ReadFile(mediaPath); err != nil || string(got) != "fake media" {
		t.Errorf("media content mismatch: %v", err)
	}
	if strings.Contains(mediaPath, "partial") {
		t.Errorf("artifact points at temp file: %q", mediaPath)
	}

	// A second run must reuse the finished output.
	fail := writeFakeFFmpeg(t, "#!/bin/sh\nexit 1\n")
	defer transcoder.SetBinaryForTests(fail)()
	if _, err := transcoder.Execute(context.Background(), rec); err != nil {
		t.Fatalf("rerun should reuse existing output: %v", err)
	}
}

func TestExecuteFailureKeepsNoPartialOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.NewRecording(t, store, "test", "uuid-1", "Standup")
	rawPath := filepath.Join(cfg.Paths.StagingDir, rec.UID, "raw.mp4")
	testsupport.WriteFile(t, rawPath, 64)
	rec.MergeArtifacts(map[string]string{queue.ArtifactRaw: rawPath})
	if err := store.Update(context.Background(), rec); err != nil {
		t.Fatalf("update recording: %v", err)
	}

	fake := writeFakeFFmpeg(t, `#!/bin/sh
echo "codec not supported" >&2
exit 1
`)
	transcoder := NewTranscoder(cfg, store, nil)
	defer transcoder.SetBinaryForTests(fake)()

	_, err := transcoder.Execute(context.Background(), rec)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error = %v, want external tool error", err)
	}
	if !strings.Contains(err.Error(), "codec not supported") {
		t.Errorf("error should carry ffmpeg stderr, got %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(cfg.Paths.StagingDir, rec.UID))
	for _, entry := range entries {
		if strings.Contains(entry.Name(), "partial") {
			t.Errorf("partial output left behind: %s", entry.Name())
		}
	}
}

func TestExecuteMissingRawIsPrecondition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.NewRecording(t, store, "test", "uuid-1", "Standup")

	transcoder := NewTranscoder(cfg, store, nil)
	_, err := transcoder.Execute(context.Background(), rec)
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("error = %v, want precondition error", err)
	}
}
