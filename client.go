package runnotify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/lattiq/runnotify/internal/core"
	"github.com/lattiq/runnotify/internal/logger"
	"github.com/lattiq/runnotify/internal/metrics"
	"github.com/lattiq/runnotify/internal/providers"
)

// Type aliases re-export core types for the public API.
type (
	Provider         = core.Provider
	ProviderSettings = core.ProviderSettings
	Email            = core.Email
	Address          = core.Address
	Priority         = core.Priority
	SendResult       = core.SendResult
	ValidationError  = core.ValidationError
	ProviderError    = core.ProviderError
)

// Priority constants
const (
	PriorityLow    = core.PriorityLow
	PriorityNormal = core.PriorityNormal
	PriorityHigh   = core.PriorityHigh
	PriorityUrgent = core.PriorityUrgent
)

// Error constructor functions
var (
	NewValidationError          = core.NewValidationError
	NewValidationErrorWithValue = core.NewValidationErrorWithValue
	NewProviderError            = core.NewProviderError
	NewRetryableProviderError   = core.NewRetryableProviderError
	NewTemporaryProviderError   = core.NewTemporaryProviderError
	IsRetryable                 = core.IsRetryable
	IsTemporary                 = core.IsTemporary
	GetRetryAfter               = core.GetRetryAfter
)

// instrumentationName names the tracers used by the client and notifiers.
const instrumentationName = "github.com/lattiq/runnotify"

// Client is the mail handle: a transport bound to one sender address.
// All methods are safe for concurrent use.
type Client struct {
	config         Config
	sender         Address
	provider       Provider
	fallback       Provider
	templates      *TemplateEngine
	retryManager   *RetryManager
	rateLimiter    *RateLimiter
	circuitBreaker *CircuitBreaker
	tracer         trace.Tracer
	logger         *zap.Logger
	mu             sync.RWMutex
	closed         bool
}

// NewHandle creates a client that sends as sender, or as the first recipient when
// sender is empty. Without a transport option it authenticates against Gmail as
// the sender, reading the password from the OS keyring.
func NewHandle(recipients []string, sender string, opts ...Option) (*Client, error) {
	if sender == "" && len(recipients) > 0 {
		sender = recipients[0]
	}
	if strings.TrimSpace(sender) == "" {
		return nil, configError(ErrNoSender)
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Provider.Type == "" && config.Provider.Custom == nil {
		WithGmail(sender)(&config)
	}

	return New(config, sender)
}

// New creates a client from config that sends as sender.
// The client must be closed when no longer needed.
func New(config Config, sender string, opts ...Option) (*Client, error) {
	for _, opt := range opts {
		opt(&config)
	}

	if err := config.Validate(); err != nil {
		return nil, configError(err)
	}

	from := Address{Email: sender}
	if !from.Valid() {
		return nil, configError(NewValidationErrorWithValue("sender", "invalid sender address", sender))
	}

	client := &Client{
		config:    config,
		sender:    from,
		templates: NewTemplateEngine(),
	}

	if tc := config.Monitoring.Tracing; tc.Enabled {
		var opts []trace.TracerOption
		if tc.ServiceName != "" {
			opts = append(opts, trace.WithInstrumentationAttributes(attribute.String("service.name", tc.ServiceName)))
		}
		client.tracer = otel.Tracer(instrumentationName, opts...)
	} else {
		client.tracer = noop.NewTracerProvider().Tracer("")
	}

	log := config.Monitoring.Logging.Logger
	if log == nil {
		var err error
		log, err = logger.New(logger.Config{
			Level:  config.Monitoring.Logging.Level,
			Format: config.Monitoring.Logging.Format,
			Output: config.Monitoring.Logging.Output,
		})
		if err != nil {
			return nil, configError(err)
		}
	}
	client.logger = log

	provider := config.Provider.Custom
	if provider == nil {
		var err error
		provider, err = providers.New(string(config.Provider.Type), config.Provider.Primary)
		if err != nil {
			return nil, fmt.Errorf("failed to create primary provider: %w", err)
		}
	}
	client.provider = provider

	if config.Provider.Fallback != nil {
		fallbackType := config.Provider.Fallback.Get("type")
		if fallbackType != "" {
			fallback, err := providers.New(fallbackType, *config.Provider.Fallback)
			if err != nil {
				return nil, fmt.Errorf("failed to create fallback provider: %w", err)
			}
			client.fallback = fallback
		}
	}

	if config.Retry.Enabled {
		client.retryManager = NewRetryManager(config.Retry)
	}

	if config.RateLimit.Enabled {
		client.rateLimiter = NewRateLimiter(config.RateLimit)
	}

	if config.CircuitBreaker.Enabled {
		client.circuitBreaker = NewCircuitBreaker(config.CircuitBreaker)
	}

	client.logger.Debug("mail handle ready",
		zap.String("sender", sender),
		zap.String("provider", provider.Name()),
	)

	return client, nil
}

// Sender returns the address the client sends as.
func (c *Client) Sender() string {
	return c.sender.Email
}

// Provider returns the name of the primary transport.
func (c *Client) Provider() string {
	return c.provider.Name()
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// Logger returns the client's logger.
func (c *Client) Logger() *zap.Logger {
	return c.logger
}

// Templates returns the engine used to render message bodies.
func (c *Client) Templates() *TemplateEngine {
	return c.templates
}

// Send sends a single email. An empty From is filled with the client's sender.
func (c *Client) Send(ctx context.Context, email *Email) error {
	ctx, span := c.tracer.Start(ctx, "runnotify.Client.Send")
	defer span.End()

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		span.RecordError(ErrClientClosed)
		span.SetStatus(codes.Error, ErrClientClosed.Error())
		return ErrClientClosed
	}
	c.mu.RUnlock()

	if email.From.Email == "" {
		email.From = c.sender
	}

	if err := email.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return err
	}

	span.SetAttributes(
		attribute.String("runnotify.to", email.To[0].Email),
		attribute.String("runnotify.from", email.From.Email),
		attribute.String("runnotify.subject", email.Subject),
		attribute.String("runnotify.provider", c.provider.Name()),
	)

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rate limited")
			return err
		}
	}

	var result *SendResult
	sendFn := func() error {
		var sendErr error
		result, sendErr = c.sendWithProvider(ctx, email, c.provider)

		if sendErr != nil && c.fallback != nil && IsRetryable(sendErr) {
			c.logger.Warn("primary provider failed, trying fallback",
				zap.String("provider", c.provider.Name()),
				zap.String("fallback", c.fallback.Name()),
				zap.Error(sendErr),
			)
			result, sendErr = c.sendWithProvider(ctx, email, c.fallback)
		}

		return sendErr
	}

	attempt := func() error {
		if c.circuitBreaker != nil {
			return c.circuitBreaker.Execute(sendFn)
		}
		return sendFn()
	}

	var err error
	if c.retryManager != nil {
		err = c.retryManager.Retry(ctx, attempt)
	} else {
		err = attempt()
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return err
	}

	if result != nil {
		span.SetAttributes(attribute.String("runnotify.message_id", result.MessageID))
	}
	span.SetStatus(codes.Ok, "email sent")

	return nil
}

// SendAll sends the same message to each recipient in order, one email each.
// By default the first failure aborts the loop and is returned; with
// ContinueOnError every recipient is attempted and failures come back as a
// *BatchError.
func (c *Client) SendAll(ctx context.Context, recipients []string, subject string, lines []string) error {
	return c.sendAll(ctx, recipients, &Message{Kind: KindMessage, Subject: subject, Lines: lines, Priority: PriorityNormal})
}

// SendMessage sends msg to every recipient, following the same rules as SendAll.
func (c *Client) SendMessage(ctx context.Context, recipients []string, msg *Message) error {
	return c.sendAll(ctx, recipients, msg)
}

func (c *Client) sendAll(ctx context.Context, recipients []string, msg *Message) error {
	ctx, span := c.tracer.Start(ctx, "runnotify.Client.SendAll",
		trace.WithAttributes(
			attribute.Int("runnotify.recipients", len(recipients)),
			attribute.String("runnotify.kind", msg.Kind.String()),
		),
	)
	defer span.End()

	text, html, err := c.templates.Render(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return err
	}

	var failures []BatchItemError
	for i, recipient := range recipients {
		email := &Email{
			From:     c.sender,
			To:       []Address{{Email: recipient}},
			Subject:  msg.Subject,
			TextBody: text,
			HTMLBody: html,
			Priority: msg.Priority,
		}

		sendCtx, cancel := context.WithTimeout(ctx, c.config.Provider.Timeout)
		err := c.Send(sendCtx, email)
		cancel()

		if err == nil {
			c.count(metrics.NotificationsSent, msg.Kind)
			continue
		}

		c.count(metrics.NotificationsFailed, msg.Kind)
		c.logger.Error("notification send failed",
			zap.String("recipient", recipient),
			zap.Stringer("kind", msg.Kind),
			zap.Error(err),
		)

		if !c.config.Notify.ContinueOnError {
			span.RecordError(err)
			span.SetStatus(codes.Error, "send aborted")
			return err
		}
		failures = append(failures, BatchItemError{Index: i, Recipient: recipient, Error: err})
	}

	if len(failures) > 0 {
		batchErr := &BatchError{
			Message: fmt.Sprintf("%d/%d recipients failed", len(failures), len(recipients)),
			Errors:  failures,
			Total:   len(recipients),
			Failed:  len(failures),
		}
		span.RecordError(batchErr)
		span.SetStatus(codes.Error, batchErr.Message)
		return batchErr
	}

	span.SetStatus(codes.Ok, "all recipients notified")
	return nil
}

// Close closes the client. Later sends fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	// Sync errors on stderr/stdout are expected on some platforms.
	_ = c.logger.Sync()
	return nil
}

func (c *Client) count(vec *prometheus.CounterVec, kind Kind) {
	if !c.config.Monitoring.Metrics.Enabled {
		return
	}
	vec.WithLabelValues(kind.String(), c.provider.Name()).Inc()
}

// sendWithProvider sends an email using a specific provider.
func (c *Client) sendWithProvider(ctx context.Context, email *Email, provider Provider) (*SendResult, error) {
	startTime := time.Now()

	result, err := provider.Send(ctx, email)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(
			attribute.Int64("runnotify.provider.duration_ms", time.Since(startTime).Milliseconds()),
		)
	}

	return result, err
}
