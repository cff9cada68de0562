package testsupport

import (
	"path/filepath"
	"testing"

	"reel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LibraryDir = filepath.Join(base, "library")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Accounts = []config.Account{{
		Name:         "test",
		AccountID:    "acct-test",
		ClientID:     "client-test",
		ClientSecret: "secret-test",
		Enabled:      true,
	}}
	cfgVal.Transcribe.APIKey = "test"
	cfgVal.Translate.APIKey = "test"
	cfgVal.Workflow.QueuePollInterval = 1
	cfgVal.Workflow.HeartbeatInterval = 1
	cfgVal.Workflow.HeartbeatTimeout = 2
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithStages toggles the optional enrichment stages on the test config.
func WithStages(transcribe, translate bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Stages.Transcribe = transcribe
		b.cfg.Stages.Translate = translate
	}
}

// WithAccounts replaces the configured accounts on the test config.
func WithAccounts(accounts ...config.Account) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Accounts = accounts
	}
}

// WithSlots sets the per-stage concurrency gates on the test config.
func WithSlots(acquire, transcode, transcribe, translate, publish int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.AcquireSlots = acquire
		b.cfg.Workflow.TranscodeSlots = transcode
		b.cfg.Workflow.TranscribeSlots = transcribe
		b.cfg.Workflow.TranslateSlots = translate
		b.cfg.Workflow.PublishSlots = publish
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
