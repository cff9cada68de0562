package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateAccounts(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateEnrichment(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	if err := c.validateObservability(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSource() error {
	if _, err := cron.ParseStandard(c.Source.SyncSchedule); err != nil {
		return fmt.Errorf("source.sync_schedule %q is not a valid cron expression: %w", c.Source.SyncSchedule, err)
	}
	for _, pattern := range c.Source.TitleExcludePatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("source.title_exclude_patterns entry %q is not a valid regular expression: %w", pattern, err)
		}
	}
	if c.Source.RequestTimeout <= 0 {
		return errors.New("source.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateAccounts() error {
	seen := make(map[string]struct{}, len(c.Accounts))
	for i, account := range c.Accounts {
		if account.Name == "" {
			return fmt.Errorf("accounts[%d].name must be set", i)
		}
		if _, dup := seen[account.Name]; dup {
			return fmt.Errorf("accounts: duplicate name %q", account.Name)
		}
		seen[account.Name] = struct{}{}
		for _, stage := range account.SkipStages {
			if stage != "transcribe" && stage != "translate" {
				return fmt.Errorf("accounts[%s].skip_stages: %q is not a skippable stage (only transcribe and translate are)", account.Name, stage)
			}
		}
		if !account.Enabled {
			continue
		}
		if account.AccountID == "" {
			return fmt.Errorf("accounts[%s].account_id must be set when the account is enabled", account.Name)
		}
		if account.ClientID == "" {
			return fmt.Errorf("accounts[%s].client_id must be set when the account is enabled", account.Name)
		}
		if account.ClientSecret == "" {
			return fmt.Errorf("accounts[%s].client_secret must be set when the account is enabled (or set REEL_%s_CLIENT_SECRET)", account.Name, sanitizeEnvKey(account.Name))
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.max_stage_attempts":   c.Workflow.MaxStageAttempts,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	for key, value := range map[string]int{
		"workflow.acquire_slots":    c.Workflow.AcquireSlots,
		"workflow.transcode_slots":  c.Workflow.TranscodeSlots,
		"workflow.transcribe_slots": c.Workflow.TranscribeSlots,
		"workflow.translate_slots":  c.Workflow.TranslateSlots,
		"workflow.publish_slots":    c.Workflow.PublishSlots,
	} {
		if value < 0 {
			return fmt.Errorf("%s must be >= 0 (0 means unlimited)", key)
		}
	}
	if c.Workflow.RetentionDays < 0 {
		return errors.New("workflow.retention_days must be >= 0 (0 disables the retention sweep)")
	}
	return nil
}

func (c *Config) validateTranscode() error {
	if strings.TrimSpace(c.Transcode.VideoCodec) == "" {
		return errors.New("transcode.video_codec must be set")
	}
	if strings.TrimSpace(c.Transcode.AudioCodec) == "" {
		return errors.New("transcode.audio_codec must be set")
	}
	if c.Transcode.CRF < 0 || c.Transcode.CRF > 51 {
		return errors.New("transcode.crf must be between 0 and 51")
	}
	if c.Transcode.TimeoutSeconds <= 0 {
		return errors.New("transcode.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateEnrichment() error {
	if c.Stages.Transcribe && strings.TrimSpace(c.Transcribe.APIKey) == "" {
		return errors.New("transcribe.api_key must be set when stages.transcribe is true (or set REEL_SPEECH_API_KEY)")
	}
	if c.Stages.Translate && strings.TrimSpace(c.Translate.APIKey) == "" {
		return errors.New("translate.api_key must be set when stages.translate is true (or set REEL_TRANSLATE_API_KEY)")
	}
	if c.Stages.Translate && !c.Stages.Transcribe {
		return errors.New("stages.translate requires stages.transcribe (translation consumes the transcript)")
	}
	return nil
}

func (c *Config) validatePublish() error {
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		return errors.New("paths.library_dir must be set")
	}
	if c.Publish.PortalURL != "" && strings.TrimSpace(c.Publish.PortalAPIKey) == "" {
		return errors.New("publish.portal_api_key must be set when publish.portal_url is configured (or set REEL_PORTAL_API_KEY)")
	}
	return nil
}

func (c *Config) validateObservability() error {
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Bind) == "" {
		return errors.New("metrics.bind must be set when metrics.enabled is true")
	}
	if c.Analytics.Enabled && strings.TrimSpace(c.Analytics.RedisAddr) == "" {
		return errors.New("analytics.redis_addr must be set when analytics.enabled is true")
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive (seconds)")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
