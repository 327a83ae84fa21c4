package ses

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/lattiq/runnotify/internal/core"
)

// Provider implements the core.Provider interface for AWS SES.
type Provider struct {
	client *ses.Client
	config core.ProviderSettings
}

// NewProvider creates a new AWS SES provider.
func NewProvider(settings core.ProviderSettings) (core.Provider, error) {
	p := &Provider{config: settings}
	if err := p.ValidateConfig(); err != nil {
		return nil, err
	}

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(settings.Get("region")),
	)
	if err != nil {
		return nil, core.NewProviderError("aws_ses", "config_error", "failed to load AWS config: "+err.Error()).WithCause(err)
	}

	if accessKey := settings.Get("access_key"); accessKey != "" {
		secretKey := settings.Get("secret_key")
		cfg.Credentials = aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     accessKey,
				SecretAccessKey: secretKey,
				SessionToken:    settings.Get("session_token"),
			}, nil
		})
	}

	p.client = ses.NewFromConfig(cfg)
	return p, nil
}

// Send sends a single email using AWS SES.
func (p *Provider) Send(ctx context.Context, email *core.Email) (*core.SendResult, error) {
	input := &ses.SendEmailInput{
		Source: aws.String(email.From.String()),
		Destination: &types.Destination{
			ToAddresses: p.convertAddresses(email.To),
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(email.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{},
		},
	}

	if email.TextBody != "" {
		input.Message.Body.Text = &types.Content{
			Data:    aws.String(email.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}

	if email.HTMLBody != "" {
		input.Message.Body.Html = &types.Content{
			Data:    aws.String(email.HTMLBody),
			Charset: aws.String("UTF-8"),
		}
	}

	if configSet := p.config.Get("configuration_set"); configSet != "" {
		input.ConfigurationSetName = aws.String(configSet)
	}

	output, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return nil, core.NewRetryableProviderError("aws_ses", "send_error", "failed to send email: "+err.Error()).WithCause(err)
	}

	return &core.SendResult{
		MessageID: aws.ToString(output.MessageId),
		Provider:  p.Name(),
		Timestamp: time.Now(),
	}, nil
}

// ValidateConfig validates the provider configuration.
func (p *Provider) ValidateConfig() error {
	if p.config.Get("region") == "" {
		return core.NewValidationError("region", "AWS region is required")
	}
	if p.config.Get("access_key") != "" && p.config.Get("secret_key") == "" {
		return core.NewValidationError("secret_key", "secret key is required when access key is provided")
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "aws_ses"
}

func (p *Provider) convertAddresses(addresses []core.Address) []string {
	result := make([]string, len(addresses))
	for i, addr := range addresses {
		result[i] = addr.String()
	}
	return result
}
