package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"reel/internal/config"
)

func TestLoadDefaultConfigUsesEnvSpeechKeyAndExpandsPaths(t *testing.T) {
	t.Setenv("REEL_SPEECH_API_KEY", "test-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "reel", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Paths.LibraryDir != filepath.Join(tempHome, "recordings") {
		t.Fatalf("unexpected library dir: %q", cfg.Paths.LibraryDir)
	}
	if !cfg.Stages.Transcribe {
		t.Fatal("expected transcribe stage enabled by default")
	}
	if cfg.Stages.Translate {
		t.Fatal("expected translate stage disabled by default")
	}
	if cfg.Transcribe.APIKey != "test-key" {
		t.Fatalf("expected speech key from env, got %q", cfg.Transcribe.APIKey)
	}
	if cfg.Source.APIBaseURL != config.Default().Source.APIBaseURL {
		t.Fatalf("unexpected source base url: %q", cfg.Source.APIBaseURL)
	}
	if cfg.Workflow.HeartbeatInterval != config.Default().Workflow.HeartbeatInterval {
		t.Fatalf("unexpected heartbeat interval: %d", cfg.Workflow.HeartbeatInterval)
	}
	if cfg.Workflow.HeartbeatTimeout != config.Default().Workflow.HeartbeatTimeout {
		t.Fatalf("unexpected heartbeat timeout: %d", cfg.Workflow.HeartbeatTimeout)
	}
	if cfg.Workflow.TranscodeSlots != 1 {
		t.Fatalf("unexpected transcode slots: %d", cfg.Workflow.TranscodeSlots)
	}
	if len(cfg.Accounts) != 0 {
		t.Fatalf("expected no accounts by default, got %d", len(cfg.Accounts))
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "reel.toml")

	type payload struct {
		Accounts []map[string]any `toml:"accounts"`
		Source   struct {
			APIBaseURL   string `toml:"api_base_url"`
			SyncSchedule string `toml:"sync_schedule"`
		} `toml:"source"`
		Workflow struct {
			HeartbeatInterval int `toml:"heartbeat_interval"`
			HeartbeatTimeout  int `toml:"heartbeat_timeout"`
			TranscribeSlots   int `toml:"transcribe_slots"`
		} `toml:"workflow"`
		Transcribe struct {
			APIKey string `toml:"api_key"`
		} `toml:"transcribe"`
	}
	custom := payload{}
	custom.Accounts = []map[string]any{{
		"name":          "corp",
		"account_id":    "acct-1",
		"client_id":     "client-1",
		"client_secret": "secret-1",
		"enabled":       true,
	}}
	custom.Source.APIBaseURL = "https://example.com/api/"
	custom.Source.SyncSchedule = "0 * * * *"
	custom.Workflow.HeartbeatInterval = 20
	custom.Workflow.HeartbeatTimeout = 200
	custom.Workflow.TranscribeSlots = 4
	custom.Transcribe.APIKey = "file-speech"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Source.APIBaseURL != "https://example.com/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Source.APIBaseURL)
	}
	if cfg.Source.SyncSchedule != "0 * * * *" {
		t.Fatalf("unexpected sync schedule: %q", cfg.Source.SyncSchedule)
	}
	if cfg.Workflow.HeartbeatInterval != 20 {
		t.Fatalf("expected heartbeat interval 20, got %d", cfg.Workflow.HeartbeatInterval)
	}
	if cfg.Workflow.HeartbeatTimeout != 200 {
		t.Fatalf("expected heartbeat timeout 200, got %d", cfg.Workflow.HeartbeatTimeout)
	}
	if cfg.Workflow.TranscribeSlots != 4 {
		t.Fatalf("expected transcribe slots 4, got %d", cfg.Workflow.TranscribeSlots)
	}
	account, ok := cfg.Account("corp")
	if !ok {
		t.Fatal("expected account lookup to succeed")
	}
	if account.ClientSecret != "secret-1" {
		t.Fatalf("unexpected client secret: %q", account.ClientSecret)
	}
	enabled := cfg.EnabledAccounts()
	if len(enabled) != 1 || enabled[0].Name != "corp" {
		t.Fatalf("unexpected enabled accounts: %+v", enabled)
	}
}

func TestAccountClientSecretEnvFallback(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "reel.toml")
	body := `
[transcribe]
api_key = "speech"

[[accounts]]
name = "corp media"
account_id = "acct-1"
client_id = "client-1"
enabled = true
`
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("REEL_CORP_MEDIA_CLIENT_SECRET", "env-secret")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	account, ok := cfg.Account("corp media")
	if !ok {
		t.Fatal("expected account lookup to succeed")
	}
	if account.ClientSecret != "env-secret" {
		t.Fatalf("expected secret from env, got %q", account.ClientSecret)
	}
}

func TestLoadRejectsEnabledAccountMissingCredentials(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "reel.toml")
	body := `
[transcribe]
api_key = "speech"

[[accounts]]
name = "corp"
enabled = true
`
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "account_id") {
		t.Fatalf("expected account_id error, got %v", err)
	}
}

func TestLoadRejectsUnknownSkipStage(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "reel.toml")
	body := `
[transcribe]
api_key = "speech"

[[accounts]]
name = "corp"
account_id = "acct"
client_id = "client"
client_secret = "secret"
enabled = true
skip_stages = ["publish"]
`
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "skip_stages") {
		t.Fatalf("expected skip_stages error, got %v", err)
	}
}

func TestLoadRejectsHeartbeatTimeoutNotGreaterThanInterval(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "reel.toml")
	body := `
[transcribe]
api_key = "speech"

[workflow]
heartbeat_interval = 30
heartbeat_timeout = 30
`
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "heartbeat_timeout") {
		t.Fatalf("expected heartbeat error, got %v", err)
	}
}

func TestLoadRejectsInvalidSyncSchedule(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "reel.toml")
	body := `
[transcribe]
api_key = "speech"

[source]
sync_schedule = "whenever"
`
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "sync_schedule") {
		t.Fatalf("expected schedule error, got %v", err)
	}
}

func TestLoadRequiresSpeechKeyWhenTranscribeEnabled(t *testing.T) {
	t.Setenv("REEL_SPEECH_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	_, _, _, err := config.Load("")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "REEL_SPEECH_API_KEY") {
		t.Fatalf("expected speech key hint, got %v", err)
	}
}

func TestLoadRejectsTranslateWithoutTranscribe(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "reel.toml")
	body := `
[stages]
transcribe = false
translate = true

[translate]
api_key = "translate"
`
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "stages.translate") {
		t.Fatalf("expected stage dependency error, got %v", err)
	}
}

func TestCreateSampleGuidesAccountSetup(t *testing.T) {
	t.Setenv("REEL_SPEECH_API_KEY", "speech")
	tempDir := t.TempDir()
	samplePath := filepath.Join(tempDir, "config.toml")

	if err := config.CreateSample(samplePath); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(samplePath)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[[accounts]]") {
		t.Fatal("expected sample to include an accounts block")
	}

	// The sample ships with an enabled account whose credentials are
	// blank, so loading it reports what still needs filling in.
	_, _, _, err = config.Load(samplePath)
	if err == nil {
		t.Fatal("expected validation error for blank sample credentials")
	}
	if !strings.Contains(err.Error(), "account_id") {
		t.Fatalf("expected account guidance, got %v", err)
	}
}

func TestExpandPathResolvesHome(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	got, err := config.ExpandPath("~/media/reel")
	if err != nil {
		t.Fatalf("ExpandPath failed: %v", err)
	}
	if got != filepath.Join(tempHome, "media", "reel") {
		t.Fatalf("unexpected expansion: %q", got)
	}
}
