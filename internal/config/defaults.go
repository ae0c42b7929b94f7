package config

const (
	defaultWatchDir             = "~/scans/inbox"
	defaultOutputDir            = "~/scans/filed"
	defaultLogDir               = "~/.local/share/scanwatch/logs"
	defaultTempDir              = "~/.local/share/scanwatch/tmp"
	defaultSocketPath           = "~/.local/share/scanwatch/scanwatch.sock"
	defaultFilePrefix           = "SCAN-"
	defaultPollIntervalMs       = 500
	defaultStabilityWindow      = 2.0
	defaultQueueCapacity        = 64
	defaultMaxPages             = 3
	defaultMaxImageDimension    = 2048
	defaultClassifierBaseURL    = "https://openrouter.ai/api/v1/chat/completions"
	defaultClassifierModel      = "google/gemini-3-flash-preview"
	defaultClassifierTimeout    = 60
	defaultRetryMaxAttempts     = 3
	defaultRetryInitialDelayMs  = 1000
	defaultRetryExponentialBase = 2.0
	defaultRetryMaxDelayMs      = 30000
	defaultRetryJitterBoundMs   = 250
	defaultBreakerThreshold     = 5
	defaultBreakerWindowSeconds = 60
	defaultBreakerOpenTimeout   = 30
	defaultQueuePollInterval    = 2
	defaultErrorRetryInterval   = 10
	defaultHealthCheckInterval  = 60
	defaultHealthAlertAfter     = 3
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDir:   defaultWatchDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
			TempDir:    defaultTempDir,
			SocketPath: defaultSocketPath,
		},
		Processing: Processing{
			FilePrefix:             defaultFilePrefix,
			PollIntervalMs:         defaultPollIntervalMs,
			StabilityWindowSeconds: defaultStabilityWindow,
			QueueCapacity:          defaultQueueCapacity,
			MaxPages:               defaultMaxPages,
			MaxImageDimension:      defaultMaxImageDimension,
		},
		Classifier: Classifier{
			BaseURL:        defaultClassifierBaseURL,
			Model:          defaultClassifierModel,
			TimeoutSeconds: defaultClassifierTimeout,
		},
		Retry: Retry{
			MaxAttempts:     defaultRetryMaxAttempts,
			InitialDelayMs:  defaultRetryInitialDelayMs,
			ExponentialBase: defaultRetryExponentialBase,
			MaxDelayMs:      defaultRetryMaxDelayMs,
			JitterBoundMs:   defaultRetryJitterBoundMs,
		},
		CircuitBreaker: CircuitBreaker{
			FailureThreshold:   defaultBreakerThreshold,
			WindowSeconds:      defaultBreakerWindowSeconds,
			OpenTimeoutSeconds: defaultBreakerOpenTimeout,
		},
		Workflow: Workflow{
			QueuePollInterval:   defaultQueuePollInterval,
			ErrorRetryInterval:  defaultErrorRetryInterval,
			HealthCheckInterval: defaultHealthCheckInterval,
			HealthAlertAfter:    defaultHealthAlertAfter,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completed:      true,
			Unknown:        true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
