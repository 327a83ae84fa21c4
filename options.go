package runnotify

import (
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Option is a functional option for configuring the mail client.
type Option func(*Config)

// Gmail SMTP endpoint used when no transport is configured.
const (
	GmailHost = "smtp.gmail.com"
	GmailPort = 587
)

// WithProvider sets the mail provider type and its settings.
func WithProvider(providerType ProviderType, settings ProviderSettings) Option {
	return func(c *Config) {
		c.Provider.Type = providerType
		c.Provider.Primary = settings
		c.Provider.Custom = nil
	}
}

// WithFallbackProvider sets a provider used when the primary fails with a retryable error.
func WithFallbackProvider(providerType ProviderType, settings ProviderSettings) Option {
	return func(c *Config) {
		fallbackSettings := settings.Clone()
		fallbackSettings["type"] = string(providerType)
		c.Provider.Fallback = &fallbackSettings
	}
}

// WithTransport uses p for every send instead of a built-in provider.
func WithTransport(p Provider) Option {
	return func(c *Config) {
		c.Provider.Type = ProviderCustom
		c.Provider.Custom = p
	}
}

// WithTimeout bounds each send.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Provider.Timeout = timeout
	}
}

// WithRetry configures retry behavior.
func WithRetry(maxAttempts int, initialDelay, maxDelay time.Duration, multiplier float64) Option {
	return func(c *Config) {
		c.Retry.Enabled = true
		c.Retry.MaxAttempts = maxAttempts
		c.Retry.InitialDelay = initialDelay
		c.Retry.MaxDelay = maxDelay
		c.Retry.Multiplier = multiplier
	}
}

// WithJitter enables or disables jitter in retry delays.
func WithJitter(enabled bool) Option {
	return func(c *Config) {
		c.Retry.Jitter = enabled
	}
}

// WithoutRetry disables retry functionality.
func WithoutRetry() Option {
	return func(c *Config) {
		c.Retry.Enabled = false
	}
}

// WithRateLimit configures rate limiting.
func WithRateLimit(rate int, period time.Duration, burst int) Option {
	return func(c *Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.Rate = rate
		c.RateLimit.Period = period
		c.RateLimit.Burst = burst
	}
}

// WithCircuitBreaker configures circuit breaker behavior.
func WithCircuitBreaker(failureThreshold, successThreshold int, timeout time.Duration) Option {
	return func(c *Config) {
		c.CircuitBreaker.Enabled = true
		c.CircuitBreaker.FailureThreshold = failureThreshold
		c.CircuitBreaker.SuccessThreshold = successThreshold
		c.CircuitBreaker.Timeout = timeout
	}
}

// WithoutCircuitBreaker disables circuit breaker functionality.
func WithoutCircuitBreaker() Option {
	return func(c *Config) {
		c.CircuitBreaker.Enabled = false
	}
}

// WithTracing enables spans under the given service name.
func WithTracing(serviceName string) Option {
	return func(c *Config) {
		c.Monitoring.Tracing.Enabled = true
		c.Monitoring.Tracing.ServiceName = serviceName
	}
}

// WithoutTracing disables distributed tracing.
func WithoutTracing() Option {
	return func(c *Config) {
		c.Monitoring.Tracing.Enabled = false
	}
}

// WithoutMetrics disables the Prometheus counters.
func WithoutMetrics() Option {
	return func(c *Config) {
		c.Monitoring.Metrics.Enabled = false
	}
}

// WithLogging configures the logger built by New.
func WithLogging(level, format, output string) Option {
	return func(c *Config) {
		c.Monitoring.Logging.Level = level
		c.Monitoring.Logging.Format = format
		c.Monitoring.Logging.Output = output
	}
}

// WithLogger makes the client log through l instead of building its own logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		c.Monitoring.Logging.Logger = l
	}
}

// WithContinueOnError makes SendAll attempt every recipient.
func WithContinueOnError() Option {
	return func(c *Config) {
		c.Notify.ContinueOnError = true
	}
}

// WithPropagateSendErrors returns start and success notification failures to the caller.
func WithPropagateSendErrors() Option {
	return func(c *Config) {
		c.Notify.PropagateSendErrors = true
	}
}

// WithValueFormat selects how return values are rendered.
func WithValueFormat(format ValueFormat) Option {
	return func(c *Config) {
		c.Notify.ValueFormat = format
	}
}

// WithAWSSES creates an AWS SES provider configuration.
func WithAWSSES(region string) Option {
	return WithProvider(ProviderAWSSES, ProviderSettings{
		"region": region,
	})
}

// WithAWSSESCredentials creates an AWS SES provider configuration with explicit credentials.
func WithAWSSESCredentials(region, accessKey, secretKey string) Option {
	return WithProvider(ProviderAWSSES, ProviderSettings{
		"region":     region,
		"access_key": accessKey,
		"secret_key": secretKey,
	})
}

// WithSendGrid creates a SendGrid provider configuration.
func WithSendGrid(apiKey string) Option {
	return WithProvider(ProviderSendGrid, ProviderSettings{
		"api_key": apiKey,
	})
}

// WithMailgun creates a Mailgun provider configuration.
func WithMailgun(apiKey, domain string) Option {
	return WithProvider(ProviderMailgun, ProviderSettings{
		"api_key": apiKey,
		"domain":  domain,
	})
}

// WithMailgunEU creates a Mailgun provider configuration for EU region.
func WithMailgunEU(apiKey, domain string) Option {
	return WithProvider(ProviderMailgun, ProviderSettings{
		"api_key":  apiKey,
		"domain":   domain,
		"base_url": "https://api.eu.mailgun.net/v3",
	})
}

// WithSMTP creates an unauthenticated SMTP provider configuration.
func WithSMTP(host string, port int) Option {
	return WithProvider(ProviderSMTP, ProviderSettings{
		"host": host,
		"port": strconv.Itoa(port),
	})
}

// WithSMTPAuth creates an SMTP provider configuration with authentication.
// An empty password is looked up in the OS keyring.
func WithSMTPAuth(host string, port int, username, password string) Option {
	return WithProvider(ProviderSMTP, ProviderSettings{
		"host":     host,
		"port":     strconv.Itoa(port),
		"username": username,
		"password": password,
	})
}

// WithGmail authenticates against Gmail SMTP as username, reading the password
// (an app password) from the OS keyring.
func WithGmail(username string) Option {
	return WithSMTPAuth(GmailHost, GmailPort, username, "")
}
