// Package providers builds mail transports from their type name and settings.
package providers

import (
	"fmt"

	"github.com/lattiq/runnotify/internal/core"
	"github.com/lattiq/runnotify/internal/providers/mailgun"
	"github.com/lattiq/runnotify/internal/providers/sendgrid"
	"github.com/lattiq/runnotify/internal/providers/ses"
	"github.com/lattiq/runnotify/internal/providers/smtp"
)

// Provider type names accepted by New.
const (
	TypeAWSSES   = "aws_ses"
	TypeSendGrid = "sendgrid"
	TypeMailgun  = "mailgun"
	TypeSMTP     = "smtp"
)

// New creates a provider instance based on type and settings.
func New(providerType string, settings core.ProviderSettings) (core.Provider, error) {
	switch providerType {
	case TypeAWSSES:
		return ses.NewProvider(settings)
	case TypeSendGrid:
		return sendgrid.NewProvider(settings)
	case TypeMailgun:
		return mailgun.NewProvider(settings)
	case TypeSMTP:
		return smtp.NewProvider(settings)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
}
