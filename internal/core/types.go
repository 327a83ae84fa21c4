package core

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/mail"
	"strconv"
	"strings"
	"time"
)

// Provider defines the interface for mail transports.
// Implementations deliver one message per call and hold their own credentials.
type Provider interface {
	// Send delivers a single email.
	Send(ctx context.Context, email *Email) (*SendResult, error)

	// ValidateConfig validates the provider configuration.
	ValidateConfig() error

	// Name returns the provider's name for identification and logging.
	Name() string
}

// ProviderSettings represents configuration settings for mail providers.
type ProviderSettings map[string]string

// Get retrieves a configuration value by key.
func (ps ProviderSettings) Get(key string) string {
	return ps[key]
}

// Set sets a configuration value.
func (ps ProviderSettings) Set(key, value string) {
	ps[key] = value
}

// Clone returns a copy that can be modified without touching the original.
func (ps ProviderSettings) Clone() ProviderSettings {
	out := make(ProviderSettings, len(ps))
	for k, v := range ps {
		out[k] = v
	}
	return out
}

// Address represents an email address with optional display name.
type Address struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// String returns "Name <email>" when a display name is set, otherwise the bare address.
func (a Address) String() string {
	if a.Name != "" {
		return mime.QEncoding.Encode("UTF-8", a.Name) + " <" + a.Email + ">"
	}
	return a.Email
}

// Valid checks if the address has a valid email format.
func (a Address) Valid() bool {
	if a.Email == "" {
		return false
	}
	_, err := mail.ParseAddress(a.String())
	return err == nil
}

// Email represents an email message.
type Email struct {
	From     Address           `json:"from"`
	To       []Address         `json:"to"`
	Subject  string            `json:"subject"`
	HTMLBody string            `json:"html_body"`
	TextBody string            `json:"text_body"`
	Headers  map[string]string `json:"headers"`
	Priority Priority          `json:"priority"`
}

// Validate checks if the email has valid structure and required fields.
func (e *Email) Validate() error {
	if !e.From.Valid() {
		return &ValidationError{Field: "from", Message: "invalid or missing sender address"}
	}

	if len(e.To) == 0 {
		return &ValidationError{Field: "to", Message: "at least one recipient required"}
	}

	for i, to := range e.To {
		if !to.Valid() {
			return &ValidationError{
				Field:   "to",
				Message: "invalid recipient address at index " + strconv.Itoa(i),
			}
		}
	}

	if strings.TrimSpace(e.Subject) == "" {
		return &ValidationError{Field: "subject", Message: "subject is required"}
	}

	if strings.TrimSpace(e.TextBody) == "" && strings.TrimSpace(e.HTMLBody) == "" {
		return &ValidationError{Field: "body", Message: "either text or HTML body is required"}
	}

	return nil
}

// PriorityHeaders returns the X-Priority and Importance headers for the email priority.
// Normal priority yields no headers.
func (e *Email) PriorityHeaders() map[string]string {
	switch e.Priority {
	case PriorityHigh:
		return map[string]string{"X-Priority": "2", "Importance": "high"}
	case PriorityUrgent:
		return map[string]string{"X-Priority": "1", "Importance": "high"}
	case PriorityLow:
		return map[string]string{"X-Priority": "4", "Importance": "low"}
	default:
		return nil
	}
}

// Priority defines the priority level of an email.
type Priority int

const (
	// PriorityLow indicates low priority email.
	PriorityLow Priority = iota

	// PriorityNormal indicates normal priority email (default).
	PriorityNormal

	// PriorityHigh indicates high priority email, used for crash reports.
	PriorityHigh

	// PriorityUrgent indicates urgent email.
	PriorityUrgent
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "normal"
	}
}

// SendResult contains the result of sending a single email.
type SendResult struct {
	// MessageID is the identifier assigned by the provider.
	MessageID string

	// Provider is the name of the provider that sent the email.
	Provider string

	// Timestamp when the email was accepted by the provider.
	Timestamp time.Time
}

// ValidationError represents a validation error with specific field information.
type ValidationError struct {
	// Field is the name of the field that failed validation.
	Field string

	// Message is the validation error message.
	Message string

	// Value is the invalid value (optional).
	Value interface{}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation error in %s: %s (value: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Is implements error matching for errors.Is.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// ProviderError represents a transport failure reported by a mail provider or webhook.
type ProviderError struct {
	// Provider is the name of the provider that generated the error.
	Provider string

	// Code is the provider-specific error code.
	Code string

	// Message is the error message from the provider.
	Message string

	// StatusCode is the HTTP status code (for HTTP-based providers).
	StatusCode int

	// IsRetryable indicates whether the error can be retried.
	IsRetryable bool

	// IsTemporary indicates whether the error is temporary.
	IsTemporary bool

	// Cause is the underlying error that caused this provider error.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s error [%s] (status: %d): %s",
			e.Provider, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s error [%s]: %s", e.Provider, e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for errors.Is.
func (e *ProviderError) Is(target error) bool {
	pe, ok := target.(*ProviderError)
	if !ok {
		return false
	}
	return e.Provider == pe.Provider && e.Code == pe.Code
}

// Retryable implements RetryableError for ProviderError.
func (e *ProviderError) Retryable() bool {
	return e.IsRetryable
}

// Temporary implements TemporaryError for ProviderError.
func (e *ProviderError) Temporary() bool {
	return e.IsTemporary
}

// WithCause attaches the underlying error and returns e.
func (e *ProviderError) WithCause(cause error) *ProviderError {
	e.Cause = cause
	return e
}

// RetryableError interface indicates whether an error can be retried.
type RetryableError interface {
	Retryable() bool
}

// TemporaryError interface indicates whether an error is temporary.
type TemporaryError interface {
	Temporary() bool
}

// NewProviderError creates a new provider error.
func NewProviderError(provider, code, message string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Code:     code,
		Message:  message,
	}
}

// NewRetryableProviderError creates a new retryable provider error.
func NewRetryableProviderError(provider, code, message string) *ProviderError {
	return &ProviderError{
		Provider:    provider,
		Code:        code,
		Message:     message,
		IsRetryable: true,
	}
}

// NewTemporaryProviderError creates a new temporary provider error.
func NewTemporaryProviderError(provider, code, message string) *ProviderError {
	return &ProviderError{
		Provider:    provider,
		Code:        code,
		Message:     message,
		IsRetryable: true,
		IsTemporary: true,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewValidationErrorWithValue creates a new validation error with a value.
func NewValidationErrorWithValue(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}

	return false
}

// IsTemporary checks if an error is temporary.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}

	var te TemporaryError
	if errors.As(err, &te) {
		return te.Temporary()
	}

	return false
}

// GetRetryAfter extracts retry delay from an error if available.
func GetRetryAfter(err error) time.Duration {
	if err == nil {
		return 0
	}

	var rl interface{ RetryAfter() time.Duration }
	if errors.As(err, &rl) {
		return rl.RetryAfter()
	}

	return 0
}
