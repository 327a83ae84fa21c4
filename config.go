package runnotify

import (
	"time"

	"go.uber.org/zap"

	"github.com/lattiq/runnotify/internal/providers"
)

// Config holds the complete notifier configuration.
type Config struct {
	// Provider contains transport configuration.
	Provider ProviderConfig

	// Retry contains retry policy configuration.
	Retry RetryConfig

	// RateLimit contains rate limiting configuration.
	RateLimit RateLimitConfig

	// CircuitBreaker contains circuit breaker configuration.
	CircuitBreaker CircuitBreakerConfig

	// Monitoring contains observability configuration.
	Monitoring MonitoringConfig

	// Notify contains lifecycle notification policy.
	Notify NotifyConfig
}

// ProviderConfig contains provider-specific settings.
type ProviderConfig struct {
	// Type specifies the mail provider to use.
	Type ProviderType

	// Primary contains settings for the primary provider.
	Primary ProviderSettings

	// Fallback contains settings for the fallback provider (optional).
	// Its "type" key names the provider.
	Fallback *ProviderSettings

	// Custom, when set, is used instead of building a provider from Type.
	Custom Provider

	// Timeout bounds each send.
	Timeout time.Duration
}

// ProviderType represents the type of mail provider.
type ProviderType string

const (
	// ProviderAWSSES represents Amazon Simple Email Service.
	ProviderAWSSES ProviderType = providers.TypeAWSSES

	// ProviderSendGrid represents the SendGrid email service.
	ProviderSendGrid ProviderType = providers.TypeSendGrid

	// ProviderMailgun represents the Mailgun email service.
	ProviderMailgun ProviderType = providers.TypeMailgun

	// ProviderSMTP represents a generic SMTP server.
	ProviderSMTP ProviderType = providers.TypeSMTP

	// ProviderCustom marks a caller-supplied Provider.
	ProviderCustom ProviderType = "custom"
)

// String returns the string representation of the provider type.
func (pt ProviderType) String() string {
	return string(pt)
}

// Valid checks if the provider type is supported.
func (pt ProviderType) Valid() bool {
	switch pt {
	case ProviderAWSSES, ProviderSendGrid, ProviderMailgun, ProviderSMTP, ProviderCustom:
		return true
	default:
		return false
	}
}

// RetryConfig contains retry policy configuration.
type RetryConfig struct {
	// Enabled indicates whether retries are enabled.
	Enabled bool

	// MaxAttempts is the maximum number of attempts including the first one.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier.
	Multiplier float64

	// Jitter adds up to 10% random delay.
	Jitter bool
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	// Enabled indicates whether rate limiting is enabled.
	Enabled bool

	// Rate is the number of messages per period.
	Rate int

	// Period is the time period for the rate limit.
	Period time.Duration

	// Burst is the maximum number of messages that can be sent immediately.
	Burst int
}

// CircuitBreakerConfig contains circuit breaker configuration.
type CircuitBreakerConfig struct {
	// Enabled indicates whether the circuit breaker is enabled.
	Enabled bool

	// FailureThreshold is the number of failures that opens the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of successes needed to close the circuit.
	SuccessThreshold int

	// Timeout is how long the circuit stays open before a trial send.
	Timeout time.Duration

	// ResetTimeout is how long to wait before resetting failure counts.
	ResetTimeout time.Duration
}

// MonitoringConfig contains observability configuration.
type MonitoringConfig struct {
	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig

	// Logging contains logging configuration.
	Logging LoggingConfig
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled indicates whether spans are recorded.
	Enabled bool

	// ServiceName is recorded as the service.name attribute of the client's tracer.
	ServiceName string
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled indicates whether Prometheus counters are updated.
	Enabled bool
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string

	// Format is the log format (json, console).
	Format string

	// Output is where to write logs (stdout, stderr, or file path).
	Output string

	// Logger, when set, is used as is and the fields above are ignored.
	Logger *zap.Logger
}

// ValueFormat selects how a wrapped call's return value is rendered.
type ValueFormat string

const (
	// ValueFormatText renders with fmt, honoring fmt.Stringer and error.
	ValueFormatText ValueFormat = "text"

	// ValueFormatJSON renders as JSON.
	ValueFormatJSON ValueFormat = "json"
)

// NotifyConfig contains lifecycle notification policy.
type NotifyConfig struct {
	// ContinueOnError makes SendAll try every recipient instead of stopping at the
	// first failure. Failures are then reported together in a *BatchError.
	ContinueOnError bool

	// PropagateSendErrors returns start and success notification failures to the
	// caller. When false they are only logged.
	PropagateSendErrors bool

	// ValueFormat selects how return values are rendered in success messages.
	ValueFormat ValueFormat
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider: ProviderConfig{
			Timeout: 30 * time.Second,
		},
		Retry: DefaultRetryConfig(),
		RateLimit: RateLimitConfig{
			Enabled: false,
			Rate:    100,
			Period:  time.Minute,
			Burst:   10,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          false,
			FailureThreshold: 5,
			SuccessThreshold: 3,
			Timeout:          60 * time.Second,
			ResetTimeout:     300 * time.Second,
		},
		Monitoring: MonitoringConfig{
			Tracing: TracingConfig{
				Enabled:     true,
				ServiceName: "runnotify",
			},
			Metrics: MetricsConfig{
				Enabled: true,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stderr",
			},
		},
		Notify: NotifyConfig{
			ValueFormat: ValueFormatText,
		},
	}
}

// DefaultRetryConfig returns default retry configuration. Retries are off
// until WithRetry enables them; the remaining fields apply once it does.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Enabled:      false,
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Validate checks if the configuration is valid and complete.
func (c *Config) Validate() error {
	if c.Provider.Custom == nil && (c.Provider.Type == ProviderCustom || !c.Provider.Type.Valid()) {
		return &ValidationError{
			Field:   "provider.type",
			Message: "invalid or unsupported provider type: " + string(c.Provider.Type),
		}
	}

	if c.Provider.Timeout <= 0 {
		return &ValidationError{
			Field:   "provider.timeout",
			Message: "timeout must be greater than 0",
		}
	}

	if c.Retry.Enabled {
		if c.Retry.MaxAttempts < 1 {
			return &ValidationError{
				Field:   "retry.max_attempts",
				Message: "max attempts must be at least 1",
			}
		}
		if c.Retry.Multiplier <= 1.0 {
			return &ValidationError{
				Field:   "retry.multiplier",
				Message: "multiplier must be greater than 1.0",
			}
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return &ValidationError{
				Field:   "rate_limit.rate",
				Message: "rate must be greater than 0",
			}
		}
		if c.RateLimit.Period <= 0 {
			return &ValidationError{
				Field:   "rate_limit.period",
				Message: "period must be greater than 0",
			}
		}
		if c.RateLimit.Burst < 1 {
			return &ValidationError{
				Field:   "rate_limit.burst",
				Message: "burst must be at least 1",
			}
		}
	}

	switch c.Notify.ValueFormat {
	case "", ValueFormatText, ValueFormatJSON:
	default:
		return &ValidationError{
			Field:   "notify.value_format",
			Message: "unsupported value format: " + string(c.Notify.ValueFormat),
		}
	}

	return nil
}
