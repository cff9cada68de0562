package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSource()
	c.normalizeAccounts()
	c.normalizeTranscribe()
	c.normalizeTranslate()
	c.normalizePublish()
	c.normalizeAnalytics()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSource() {
	c.Source.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.Source.APIBaseURL), "/")
	if c.Source.APIBaseURL == "" {
		c.Source.APIBaseURL = defaultSourceAPIBaseURL
	}
	c.Source.AuthBaseURL = strings.TrimRight(strings.TrimSpace(c.Source.AuthBaseURL), "/")
	if c.Source.AuthBaseURL == "" {
		c.Source.AuthBaseURL = defaultSourceAuthBaseURL
	}
	c.Source.SyncSchedule = strings.TrimSpace(c.Source.SyncSchedule)
	if c.Source.SyncSchedule == "" {
		c.Source.SyncSchedule = defaultSyncSchedule
	}
	if c.Source.LookbackDays <= 0 {
		c.Source.LookbackDays = defaultLookbackDays
	}
	if c.Source.MinDurationMinutes < 0 {
		c.Source.MinDurationMinutes = 0
	}
	if c.Source.RequestTimeout <= 0 {
		c.Source.RequestTimeout = defaultSourceTimeout
	}
	patterns := make([]string, 0, len(c.Source.TitleExcludePatterns))
	for _, pattern := range c.Source.TitleExcludePatterns {
		if trimmed := strings.TrimSpace(pattern); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	c.Source.TitleExcludePatterns = patterns
}

// normalizeAccounts trims identifiers and honours per-account secret
// environment fallbacks of the form REEL_<NAME>_CLIENT_SECRET.
func (c *Config) normalizeAccounts() {
	for i := range c.Accounts {
		account := &c.Accounts[i]
		account.Name = strings.TrimSpace(account.Name)
		account.AccountID = strings.TrimSpace(account.AccountID)
		account.ClientID = strings.TrimSpace(account.ClientID)
		account.ClientSecret = strings.TrimSpace(account.ClientSecret)
		if account.ClientSecret == "" && account.Name != "" {
			envKey := "REEL_" + sanitizeEnvKey(account.Name) + "_CLIENT_SECRET"
			if value, ok := os.LookupEnv(envKey); ok {
				account.ClientSecret = strings.TrimSpace(value)
			}
		}
	}
}

func (c *Config) normalizeTranscribe() {
	c.Transcribe.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcribe.BaseURL), "/")
	if c.Transcribe.BaseURL == "" {
		c.Transcribe.BaseURL = defaultSpeechBaseURL
	}
	c.Transcribe.Model = strings.TrimSpace(c.Transcribe.Model)
	if c.Transcribe.Model == "" {
		c.Transcribe.Model = defaultSpeechModel
	}
	c.Transcribe.Language = strings.ToLower(strings.TrimSpace(c.Transcribe.Language))
	c.Transcribe.APIKey = strings.TrimSpace(c.Transcribe.APIKey)
	if c.Transcribe.APIKey == "" {
		if value, ok := os.LookupEnv("REEL_SPEECH_API_KEY"); ok {
			c.Transcribe.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.Transcribe.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Transcribe.TimeoutSeconds <= 0 {
		c.Transcribe.TimeoutSeconds = defaultSpeechTimeout
	}
}

func (c *Config) normalizeTranslate() {
	c.Translate.BaseURL = strings.TrimSpace(c.Translate.BaseURL)
	if c.Translate.BaseURL == "" {
		c.Translate.BaseURL = defaultTranslateBaseURL
	}
	c.Translate.Model = strings.TrimSpace(c.Translate.Model)
	if c.Translate.Model == "" {
		c.Translate.Model = defaultTranslateModel
	}
	c.Translate.TargetLanguage = strings.ToLower(strings.TrimSpace(c.Translate.TargetLanguage))
	if c.Translate.TargetLanguage == "" {
		c.Translate.TargetLanguage = defaultTranslateLanguage
	}
	c.Translate.APIKey = strings.TrimSpace(c.Translate.APIKey)
	if c.Translate.APIKey == "" {
		if value, ok := os.LookupEnv("REEL_TRANSLATE_API_KEY"); ok {
			c.Translate.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.Translate.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Translate.TimeoutSeconds <= 0 {
		c.Translate.TimeoutSeconds = defaultTranslateTimeout
	}
}

func (c *Config) normalizePublish() {
	c.Publish.PortalURL = strings.TrimRight(strings.TrimSpace(c.Publish.PortalURL), "/")
	c.Publish.PortalAPIKey = strings.TrimSpace(c.Publish.PortalAPIKey)
	if c.Publish.PortalAPIKey == "" {
		if value, ok := os.LookupEnv("REEL_PORTAL_API_KEY"); ok {
			c.Publish.PortalAPIKey = strings.TrimSpace(value)
		}
	}
	if c.Publish.PortalTimeout <= 0 {
		c.Publish.PortalTimeout = defaultPortalTimeout
	}
}

func (c *Config) normalizeAnalytics() {
	c.Analytics.RedisAddr = strings.TrimSpace(c.Analytics.RedisAddr)
	if c.Analytics.RedisAddr == "" {
		c.Analytics.RedisAddr = defaultAnalyticsRedisAddr
	}
	c.Analytics.KeyPrefix = strings.TrimSpace(c.Analytics.KeyPrefix)
	if c.Analytics.KeyPrefix == "" {
		c.Analytics.KeyPrefix = defaultAnalyticsPrefix
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func sanitizeEnvKey(name string) string {
	upper := strings.ToUpper(name)
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
