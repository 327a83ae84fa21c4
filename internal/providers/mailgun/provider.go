package mailgun

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/lattiq/runnotify/internal/core"
)

// Provider implements the core.Provider interface for Mailgun.
type Provider struct {
	client mailgun.Mailgun
	config core.ProviderSettings
}

// NewProvider creates a new Mailgun provider.
func NewProvider(settings core.ProviderSettings) (core.Provider, error) {
	p := &Provider{config: settings}
	if err := p.ValidateConfig(); err != nil {
		return nil, err
	}

	client := mailgun.NewMailgun(settings.Get("domain"), settings.Get("api_key"))

	// EU accounts use a different API base.
	if baseURL := settings.Get("base_url"); baseURL != "" {
		client.SetAPIBase(apiBase(baseURL))
	}

	p.client = client
	return p, nil
}

var versionSuffix = regexp.MustCompile(`/v[1-5]$`)

// apiBase returns base with the v3 API path appended unless it already names
// an API version, which mailgun-go requires.
func apiBase(base string) string {
	base = strings.TrimRight(base, "/")
	if versionSuffix.MatchString(base) {
		return base
	}
	return base + "/v3"
}

// Send sends a single email using Mailgun.
func (p *Provider) Send(ctx context.Context, email *core.Email) (*core.SendResult, error) {
	message := p.client.NewMessage(email.From.String(), email.Subject, email.TextBody, email.To[0].String())

	for i := 1; i < len(email.To); i++ {
		if err := message.AddRecipient(email.To[i].String()); err != nil {
			return nil, core.NewProviderError("mailgun", "recipient_add_failed",
				fmt.Sprintf("failed to add recipient %s: %v", email.To[i].String(), err)).WithCause(err)
		}
	}

	if email.HTMLBody != "" {
		message.SetHtml(email.HTMLBody)
	}

	for key, value := range email.PriorityHeaders() {
		message.AddHeader(key, value)
	}
	for key, value := range email.Headers {
		message.AddHeader(key, value)
	}

	_, id, err := p.client.Send(ctx, message)
	if err != nil {
		return nil, core.NewRetryableProviderError("mailgun", "send_failed", err.Error()).WithCause(err)
	}

	return &core.SendResult{
		MessageID: id,
		Provider:  p.Name(),
		Timestamp: time.Now(),
	}, nil
}

// ValidateConfig validates the Mailgun provider configuration.
func (p *Provider) ValidateConfig() error {
	if p.config.Get("api_key") == "" {
		return core.NewValidationError("api_key", "Mailgun API key is required")
	}
	if p.config.Get("domain") == "" {
		return core.NewValidationError("domain", "Mailgun domain is required")
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "mailgun"
}
