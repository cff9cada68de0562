package config

const (
	defaultStagingDir         = "~/.local/share/reel/staging"
	defaultLibraryDir         = "~/recordings"
	defaultLogDir             = "~/.local/share/reel/logs"
	defaultLogRetentionDays   = 60
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultSourceAPIBaseURL   = "https://api.zoom.us/v2"
	defaultSourceAuthBaseURL  = "https://zoom.us"
	defaultSyncSchedule       = "*/15 * * * *"
	defaultLookbackDays       = 7
	defaultMinDurationMinutes = 5
	defaultSourceTimeout      = 30
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120
	defaultMaxStageAttempts   = 3
	defaultAcquireSlots       = 2
	defaultTranscodeSlots     = 1
	defaultTranscribeSlots    = 2
	defaultTranslateSlots     = 2
	defaultPublishSlots       = 2
	defaultQueueRetention     = 60
	defaultVideoCodec         = "libx264"
	defaultAudioCodec         = "aac"
	defaultTranscodePreset    = "medium"
	defaultTranscodeCRF       = 23
	defaultContainer          = "mp4"
	defaultTranscodeTimeout   = 7200
	defaultSpeechBaseURL      = "https://api.openai.com/v1"
	defaultSpeechModel        = "whisper-1"
	defaultSpeechTimeout      = 900
	defaultTranslateBaseURL   = "https://openrouter.ai/api/v1/chat/completions"
	defaultTranslateModel     = "google/gemini-3-flash-preview"
	defaultTranslateLanguage  = "en"
	defaultTranslateTimeout   = 120
	defaultPortalTimeout      = 15
	defaultMetricsBind        = "127.0.0.1:9464"
	defaultAnalyticsRedisAddr = "127.0.0.1:6379"
	defaultAnalyticsPrefix    = "reel"
	defaultNotifyTimeout      = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LibraryDir: defaultLibraryDir,
			LogDir:     defaultLogDir,
		},
		Source: Source{
			APIBaseURL:         defaultSourceAPIBaseURL,
			AuthBaseURL:        defaultSourceAuthBaseURL,
			SyncSchedule:       defaultSyncSchedule,
			LookbackDays:       defaultLookbackDays,
			MinDurationMinutes: defaultMinDurationMinutes,
			RequestTimeout:     defaultSourceTimeout,
		},
		Stages: Stages{
			Transcribe: true,
			Translate:  false,
		},
		Workflow: Workflow{
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			MaxStageAttempts:   defaultMaxStageAttempts,
			AcquireSlots:       defaultAcquireSlots,
			TranscodeSlots:     defaultTranscodeSlots,
			TranscribeSlots:    defaultTranscribeSlots,
			TranslateSlots:     defaultTranslateSlots,
			PublishSlots:       defaultPublishSlots,
			RetentionDays:      defaultQueueRetention,
		},
		Transcode: Transcode{
			VideoCodec:     defaultVideoCodec,
			AudioCodec:     defaultAudioCodec,
			Preset:         defaultTranscodePreset,
			CRF:            defaultTranscodeCRF,
			Container:      defaultContainer,
			TimeoutSeconds: defaultTranscodeTimeout,
		},
		Transcribe: Transcribe{
			BaseURL:        defaultSpeechBaseURL,
			Model:          defaultSpeechModel,
			TimeoutSeconds: defaultSpeechTimeout,
		},
		Translate: Translate{
			BaseURL:        defaultTranslateBaseURL,
			Model:          defaultTranslateModel,
			TargetLanguage: defaultTranslateLanguage,
			TimeoutSeconds: defaultTranslateTimeout,
		},
		Publish: Publish{
			PortalTimeout: defaultPortalTimeout,
		},
		Metrics: Metrics{
			Bind: defaultMetricsBind,
		},
		Analytics: Analytics{
			RedisAddr: defaultAnalyticsRedisAddr,
			KeyPrefix: defaultAnalyticsPrefix,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Intake:         true,
			Published:      true,
			Failures:       true,
			Daemon:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
