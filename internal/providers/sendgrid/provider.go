package sendgrid

import (
	"context"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/lattiq/runnotify/internal/core"
)

// Provider implements the core.Provider interface for SendGrid.
type Provider struct {
	client *sendgrid.Client
	config core.ProviderSettings
}

// NewProvider creates a new SendGrid provider.
func NewProvider(settings core.ProviderSettings) (core.Provider, error) {
	p := &Provider{config: settings}
	if err := p.ValidateConfig(); err != nil {
		return nil, err
	}

	p.client = sendgrid.NewSendClient(settings.Get("api_key"))
	return p, nil
}

// Send sends a single email using SendGrid.
func (p *Provider) Send(ctx context.Context, email *core.Email) (*core.SendResult, error) {
	if len(email.To) == 0 {
		return nil, core.NewValidationError("to", "at least one recipient is required")
	}

	from := mail.NewEmail(email.From.Name, email.From.Email)
	to := mail.NewEmail(email.To[0].Name, email.To[0].Email)
	message := mail.NewSingleEmail(from, email.Subject, to, email.TextBody, email.HTMLBody)

	if len(email.To) > 1 {
		personalization := mail.NewPersonalization()
		for _, recipient := range email.To {
			personalization.AddTos(mail.NewEmail(recipient.Name, recipient.Email))
		}
		message.Personalizations = []*mail.Personalization{personalization}
	}

	headers := email.PriorityHeaders()
	if len(headers) > 0 || len(email.Headers) > 0 {
		message.Headers = make(map[string]string, len(headers)+len(email.Headers))
		for key, value := range headers {
			message.Headers[key] = value
		}
		for key, value := range email.Headers {
			message.Headers[key] = value
		}
	}

	response, err := p.client.SendWithContext(ctx, message)
	if err != nil {
		return nil, core.NewRetryableProviderError("sendgrid", "send_error", "failed to send email: "+err.Error()).WithCause(err)
	}

	if response.StatusCode >= 400 {
		perr := core.NewProviderError("sendgrid", "api_error", "SendGrid API error: "+response.Body)
		perr.StatusCode = response.StatusCode
		// 429 and 5xx are worth another attempt.
		perr.IsRetryable = response.StatusCode == 429 || response.StatusCode >= 500
		return nil, perr
	}

	messageID := "unknown"
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}

	return &core.SendResult{
		MessageID: messageID,
		Provider:  p.Name(),
		Timestamp: time.Now(),
	}, nil
}

// ValidateConfig validates the provider configuration.
func (p *Provider) ValidateConfig() error {
	if p.config.Get("api_key") == "" {
		return core.NewValidationError("api_key", "SendGrid API key is required")
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "sendgrid"
}
