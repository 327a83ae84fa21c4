package runnotify

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RetryManager handles retry logic for failed sends.
type RetryManager struct {
	config RetryConfig
}

// NewRetryManager creates a new retry manager with the given configuration.
func NewRetryManager(config RetryConfig) *RetryManager {
	return &RetryManager{
		config: config,
	}
}

// Retry executes fn until it succeeds, returns a non-retryable error, or the
// attempts run out.
func (r *RetryManager) Retry(ctx context.Context, fn func() error) error {
	if !r.config.Enabled {
		return fn()
	}

	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		if attempt == r.config.MaxAttempts {
			break
		}

		delay := r.calculateDelay(attempt)
		if retryAfter := GetRetryAfter(err); retryAfter > 0 {
			delay = retryAfter
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// calculateDelay calculates the delay for the given attempt number.
func (r *RetryManager) calculateDelay(attempt int) time.Duration {
	delay := time.Duration(float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1)))

	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}

	if r.config.Jitter {
		// Up to 10% extra.
		maxJitter := int64(float64(delay) * 0.1)
		if maxJitter > 0 {
			jitterBig, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
			if err == nil {
				delay += time.Duration(jitterBig.Int64())
			}
		}
	}

	return delay
}

// RateLimiter spaces out sends with a token bucket.
type RateLimiter struct {
	config  RateLimitConfig
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	every := rate.Every(config.Period / time.Duration(config.Rate))
	return &RateLimiter{
		config:  config,
		limiter: rate.NewLimiter(every, config.Burst),
	}
}

// Wait blocks until a send is allowed or ctx is done. A wait that could never
// finish before the context deadline fails fast with a *RateLimitError.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if !rl.config.Enabled {
		return nil
	}

	if err := rl.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		retryAfter := rl.config.Period / time.Duration(rl.config.Rate)
		return NewRateLimitError(err.Error(), retryAfter)
	}
	return nil
}

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState int

const (
	// CircuitBreakerClosed indicates normal operation.
	CircuitBreakerClosed CircuitBreakerState = iota

	// CircuitBreakerOpen indicates sends are being rejected.
	CircuitBreakerOpen

	// CircuitBreakerHalfOpen indicates a trial send is allowed.
	CircuitBreakerHalfOpen
)

// String returns the string representation of the circuit breaker state.
func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitBreakerClosed:
		return "closed"
	case CircuitBreakerOpen:
		return "open"
	case CircuitBreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops hammering a transport that keeps failing.
type CircuitBreaker struct {
	config       CircuitBreakerConfig
	state        CircuitBreakerState
	failureCount int
	successCount int
	lastFailTime time.Time
	now          func() time.Time
	mutex        sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		config: config,
		state:  CircuitBreakerClosed,
		now:    time.Now,
	}
}

// Execute executes fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.config.Enabled {
		return fn()
	}

	if !cb.canExecute() {
		return ErrCircuitBreakerOpen
	}

	err := fn()
	cb.recordResult(err)
	return err
}

func (cb *CircuitBreaker) canExecute() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case CircuitBreakerClosed, CircuitBreakerHalfOpen:
		return true
	case CircuitBreakerOpen:
		if cb.now().Sub(cb.lastFailTime) >= cb.config.Timeout {
			cb.state = CircuitBreakerHalfOpen
			cb.successCount = 0
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if err != nil {
		cb.failureCount++
		cb.lastFailTime = cb.now()

		if cb.state == CircuitBreakerClosed && cb.failureCount >= cb.config.FailureThreshold {
			cb.state = CircuitBreakerOpen
		} else if cb.state == CircuitBreakerHalfOpen {
			cb.state = CircuitBreakerOpen
		}
		return
	}

	cb.successCount++

	if cb.state == CircuitBreakerHalfOpen && cb.successCount >= cb.config.SuccessThreshold {
		cb.state = CircuitBreakerClosed
		cb.failureCount = 0
	}

	if cb.state == CircuitBreakerClosed && cb.now().Sub(cb.lastFailTime) >= cb.config.ResetTimeout {
		cb.failureCount = 0
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// FailureCount returns the current failure count.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.failureCount
}
