package runnotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// SlackUsername is the bot name messages are posted under.
const SlackUsername = "Knock Knock"

// SlackDispatcher posts messages to a Slack incoming webhook.
type SlackDispatcher struct {
	webhookURL string
	channel    string
	mentions   []string
	username   string
	client     *resty.Client
}

// SlackOption configures a SlackDispatcher.
type SlackOption func(*SlackDispatcher)

// WithSlackMentions appends the given user mentions (e.g. "<@U024BE7LH>") to
// every message.
func WithSlackMentions(mentions ...string) SlackOption {
	return func(d *SlackDispatcher) {
		d.mentions = append(d.mentions, mentions...)
	}
}

// WithSlackUsername overrides the bot name.
func WithSlackUsername(username string) SlackOption {
	return func(d *SlackDispatcher) {
		d.username = username
	}
}

// WithSlackHTTPClient sends webhook requests through hc.
func WithSlackHTTPClient(hc *http.Client) SlackOption {
	return func(d *SlackDispatcher) {
		d.client = resty.NewWithClient(hc)
	}
}

// NewSlackDispatcher creates a dispatcher for the webhook at webhookURL that
// posts into channel.
func NewSlackDispatcher(webhookURL, channel string, opts ...SlackOption) (*SlackDispatcher, error) {
	if webhookURL == "" {
		return nil, configError(NewValidationError("webhook_url", "webhook URL is required"))
	}

	d := &SlackDispatcher{
		webhookURL: webhookURL,
		channel:    channel,
		username:   SlackUsername,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.client == nil {
		d.client = resty.New().SetTimeout(30 * time.Second)
	}
	d.client.SetHeader("User-Agent", GetVersionInfo().UserAgent())

	return d, nil
}

type slackPayload struct {
	Username  string `json:"username"`
	Channel   string `json:"channel"`
	Text      string `json:"text"`
	IconEmoji string `json:"icon_emoji"`
}

// Dispatch posts msg to the webhook. Any non-2xx answer is a *ProviderError.
func (d *SlackDispatcher) Dispatch(ctx context.Context, msg *Message) error {
	body, err := jsonAPI.Marshal(slackPayload{
		Username:  d.username,
		Channel:   d.channel,
		Text:      d.text(msg),
		IconEmoji: slackIcon(msg.Kind),
	})
	if err != nil {
		return fmt.Errorf("failed to encode slack payload: %w", err)
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(d.webhookURL)
	if err != nil {
		return NewRetryableProviderError("slack", "send_error", "webhook request failed").WithCause(err)
	}

	if !resp.IsSuccess() {
		perr := NewProviderError("slack", "webhook_error",
			fmt.Sprintf("webhook returned %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String())))
		perr.StatusCode = resp.StatusCode()
		perr.IsRetryable = resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
		return perr
	}

	return nil
}

// text renders the message as Slack shows it: the subject as the first line,
// then the body, then the mentions.
func (d *SlackDispatcher) text(msg *Message) string {
	lines := make([]string, 0, len(msg.Lines)+2)
	lines = append(lines, msg.Subject)
	lines = append(lines, msg.Lines...)
	if len(d.mentions) > 0 {
		lines = append(lines, strings.Join(d.mentions, " "))
	}
	return strings.Join(lines, "\n")
}

func slackIcon(kind Kind) string {
	switch kind {
	case KindSucceeded:
		return ":tada:"
	case KindCrashed:
		return ":skull_and_crossbones:"
	case KindMessage:
		return ":envelope:"
	default:
		return ":clapper:"
	}
}
