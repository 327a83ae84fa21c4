package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/gomail.v2"

	"github.com/lattiq/runnotify/internal/core"
)

// KeyringService is the OS keyring service under which SMTP passwords are stored.
const KeyringService = "runnotify"

// keyringGet is swapped in tests.
var keyringGet = keyring.Get

// dialer is the part of gomail.Dialer the provider uses.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Provider implements the core.Provider interface for SMTP.
type Provider struct {
	config core.ProviderSettings
	host   string
	dialer dialer
}

// NewProvider creates a new SMTP provider.
// A username without a password is resolved through the OS keyring, so credentials
// are settled here rather than on first send.
func NewProvider(settings core.ProviderSettings) (core.Provider, error) {
	p := &Provider{config: settings}
	if err := p.ValidateConfig(); err != nil {
		return nil, err
	}

	host := settings.Get("host")
	port, _ := strconv.Atoi(settings.Get("port"))
	username := settings.Get("username")
	password := settings.Get("password")

	if username != "" && password == "" {
		service := settings.Get("keyring_service")
		if service == "" {
			service = KeyringService
		}
		secret, err := keyringGet(service, username)
		if err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				return nil, core.NewValidationErrorWithValue("password",
					"no password given and none stored in the keyring", service+"/"+username)
			}
			return nil, core.NewProviderError("smtp", "keyring_error", "failed to read keyring: "+err.Error()).WithCause(err)
		}
		password = secret
	}

	d := gomail.NewDialer(host, port, username, password)
	if settings.Get("tls_skip_verify") == "true" {
		d.TLSConfig = &tls.Config{ServerName: host, InsecureSkipVerify: true} // #nosec G402 -- opt-in for development relays
	} else {
		d.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	if settings.Get("ssl") == "true" {
		d.SSL = true
	}

	p.host = host
	p.dialer = d
	return p, nil
}

// Send sends a single email using SMTP.
// gomail has no context support; ctx is only checked before dialing.
func (p *Provider) Send(ctx context.Context, email *core.Email) (*core.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.NewProviderError("smtp", "context_done", err.Error()).WithCause(err)
	}

	msg := p.buildMessage(email)
	if err := p.dialer.DialAndSend(msg); err != nil {
		return nil, core.NewRetryableProviderError("smtp", "send_error", "failed to send email: "+err.Error()).WithCause(err)
	}

	return &core.SendResult{
		MessageID: fmt.Sprintf("%d@%s", time.Now().UnixNano(), p.host),
		Provider:  p.Name(),
		Timestamp: time.Now(),
	}, nil
}

// ValidateConfig validates the provider configuration.
func (p *Provider) ValidateConfig() error {
	if p.config.Get("host") == "" {
		return core.NewValidationError("host", "SMTP host is required")
	}

	port := p.config.Get("port")
	if port == "" {
		return core.NewValidationError("port", "SMTP port is required")
	}

	if _, err := strconv.Atoi(port); err != nil {
		return core.NewValidationError("port", "invalid port number: "+port)
	}

	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "smtp"
}

func (p *Provider) buildMessage(email *core.Email) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", email.From.Email, email.From.Name)

	to := make([]string, 0, len(email.To))
	for _, addr := range email.To {
		to = append(to, m.FormatAddress(addr.Email, addr.Name))
	}
	m.SetHeader("To", to...)
	m.SetHeader("Subject", email.Subject)

	for key, value := range email.PriorityHeaders() {
		m.SetHeader(key, value)
	}
	for key, value := range email.Headers {
		m.SetHeader(key, value)
	}

	switch {
	case email.TextBody != "" && email.HTMLBody != "":
		m.SetBody("text/plain", email.TextBody)
		m.AddAlternative("text/html", email.HTMLBody)
	case email.HTMLBody != "":
		m.SetBody("text/html", email.HTMLBody)
	default:
		m.SetBody("text/plain", email.TextBody)
	}

	return m
}
