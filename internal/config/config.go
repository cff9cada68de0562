package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LibraryDir string `toml:"library_dir"`
	LogDir     string `toml:"log_dir"`
}

// Source contains the recording platform connection and intake rules.
type Source struct {
	APIBaseURL           string   `toml:"api_base_url"`
	AuthBaseURL          string   `toml:"auth_base_url"`
	SyncSchedule         string   `toml:"sync_schedule"`
	LookbackDays         int      `toml:"lookback_days"`
	MinDurationMinutes   int      `toml:"min_duration_minutes"`
	TitleExcludePatterns []string `toml:"title_exclude_patterns"`
	RequestTimeout       int      `toml:"request_timeout"`
}

// Account identifies one server-to-server OAuth app on the platform.
type Account struct {
	Name         string   `toml:"name"`
	AccountID    string   `toml:"account_id"`
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	Enabled      bool     `toml:"enabled"`
	SkipStages   []string `toml:"skip_stages"`
}

// Stages toggles the optional enrichment stages.
type Stages struct {
	Transcribe bool `toml:"transcribe"`
	Translate  bool `toml:"translate"`
}

// Workflow contains daemon timing, retry, and concurrency-gate settings.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	MaxStageAttempts   int `toml:"max_stage_attempts"`
	AcquireSlots       int `toml:"acquire_slots"`
	TranscodeSlots     int `toml:"transcode_slots"`
	TranscribeSlots    int `toml:"transcribe_slots"`
	TranslateSlots     int `toml:"translate_slots"`
	PublishSlots       int `toml:"publish_slots"`
	RetentionDays      int `toml:"retention_days"`
}

// Transcode contains the ffmpeg output settings.
type Transcode struct {
	VideoCodec     string `toml:"video_codec"`
	AudioCodec     string `toml:"audio_codec"`
	Preset         string `toml:"preset"`
	CRF            int    `toml:"crf"`
	Container      string `toml:"container"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Transcribe contains the hosted speech-to-text settings.
type Transcribe struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Translate contains the transcript translation settings.
type Translate struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TargetLanguage string `toml:"target_language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Publish contains library layout and portal refresh settings.
type Publish struct {
	OverwriteExisting bool   `toml:"overwrite_existing"`
	PortalURL         string `toml:"portal_url"`
	PortalAPIKey      string `toml:"portal_api_key"`
	PortalTimeout     int    `toml:"portal_timeout"`
}

// Metrics contains the Prometheus exposition settings.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
}

// Analytics contains the optional Redis counter settings.
type Analytics struct {
	Enabled   bool   `toml:"enabled"`
	RedisAddr string `toml:"redis_addr"`
	RedisDB   int    `toml:"redis_db"`
	KeyPrefix string `toml:"key_prefix"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Intake         bool   `toml:"intake"`
	Published      bool   `toml:"published"`
	Failures       bool   `toml:"failures"`
	Daemon         bool   `toml:"daemon"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for reel.
//
// Configuration sections by subsystem:
//   - Paths: staging, library, and log directories
//   - Source: platform API endpoints and intake rules
//   - Accounts: server-to-server OAuth credentials per platform account
//   - Stages: optional enrichment toggles
//   - Workflow: polling, heartbeat, retry budget, concurrency gates, retention
//   - Transcode/Transcribe/Translate/Publish: per-stage executor settings
//   - Metrics/Analytics/Notifications: observability side channels
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Source        Source        `toml:"source"`
	Accounts      []Account     `toml:"accounts"`
	Stages        Stages        `toml:"stages"`
	Workflow      Workflow      `toml:"workflow"`
	Transcode     Transcode     `toml:"transcode"`
	Transcribe    Transcribe    `toml:"transcribe"`
	Translate     Translate     `toml:"translate"`
	Publish       Publish       `toml:"publish"`
	Metrics       Metrics       `toml:"metrics"`
	Analytics     Analytics     `toml:"analytics"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reel/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		if err := decodeFile(resolvedPath, &cfg); err != nil {
			return nil, "", false, err
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("reel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	return nil
}

// Account returns the configured account with the given name.
func (c *Config) Account(name string) (Account, bool) {
	for _, account := range c.Accounts {
		if account.Name == name {
			return account, true
		}
	}
	return Account{}, false
}

// EnabledAccounts returns the accounts eligible for intake sync.
func (c *Config) EnabledAccounts() []Account {
	accounts := make([]Account, 0, len(c.Accounts))
	for _, account := range c.Accounts {
		if account.Enabled {
			accounts = append(accounts, account)
		}
	}
	return accounts
}

// FFmpegBinary returns the ffmpeg executable name used for transcoding.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media validation.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
