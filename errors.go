package runnotify

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Predefined sentinel errors for common cases.
var (
	// ErrInvalidConfiguration indicates invalid configuration.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrNoSender indicates that no sender address was given and none could be
	// derived from the recipients.
	ErrNoSender = errors.New("cannot determine sender address")

	// ErrRateLimited indicates the operation was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrCircuitBreakerOpen indicates the circuit breaker is open.
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("client closed")
)

// RateLimitError represents a rate limiting error with retry information.
type RateLimitError struct {
	// Message is the error message.
	Message string

	// RetryAfterDuration indicates when the operation can be retried.
	RetryAfterDuration time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s (retry after %v)", e.Message, e.RetryAfterDuration)
}

// RetryAfter reports how long to wait before retrying.
func (e *RateLimitError) RetryAfter() time.Duration {
	return e.RetryAfterDuration
}

// Unwrap makes errors.Is(err, ErrRateLimited) hold.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// BatchError reports the recipients that failed during SendAll with ContinueOnError.
type BatchError struct {
	// Message is the overall error message.
	Message string

	// Errors contains individual errors for each failed recipient.
	Errors []BatchItemError

	// Total is the total number of recipients.
	Total int

	// Failed is the number of recipients that failed.
	Failed int
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "batch error: %s (%d/%d failed)", e.Message, e.Failed, e.Total)
	for _, item := range e.Errors {
		fmt.Fprintf(&b, "; %s: %v", item.Recipient, item.Error)
	}
	return b.String()
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors))
	for _, item := range e.Errors {
		errs = append(errs, item.Error)
	}
	return errs
}

// BatchItemError represents the failure for one recipient.
type BatchItemError struct {
	// Index is the position of the recipient in the list.
	Index int

	// Recipient is the address that failed.
	Recipient string

	// Error is the error that occurred for this recipient.
	Error error
}

// NewRateLimitError creates a new rate limit error.
func NewRateLimitError(message string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{
		Message:            message,
		RetryAfterDuration: retryAfter,
	}
}

func configError(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
}
