// Package retrypolicy is exponential backoff with a cap and a
// retryable-error predicate. Delays are deterministic, never jittered:
// attempt k waits exactly min(initial * multiplier^(k-1), max).
package retrypolicy

import (
	"math"
	"time"

	"github.com/procthread/engine/internal/domain"
)

// Policy is the retry configuration for one element.
type Policy struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RetryOnAny      bool
	RetryableErrors []string // error categories in the allow-list, checked when !RetryOnAny
}

// Default returns the default-action preset: 3 retries, 1s initial
// delay, 30s cap, 2x multiplier, retry on any error.
func Default() *Policy {
	return &Policy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		RetryOnAny:   true,
	}
}

// Strict returns a preset with more retries, restricted to network-category
// errors.
func Strict() *Policy {
	return &Policy{
		MaxRetries:      5,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        60 * time.Second,
		Multiplier:      2.0,
		RetryOnAny:      false,
		RetryableErrors: []string{"network"},
	}
}

// NoRetry returns a policy that never retries.
func NoRetry() *Policy {
	return &Policy{MaxRetries: 0}
}

// DelayFor computes the delay before attempt number k (k >= 1):
// min(InitialDelay * Multiplier^(k-1), MaxDelay). Attempt 0 (the first,
// non-retry attempt) has no delay.
func (p *Policy) DelayFor(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		return 0
	}
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attemptNumber-1))
	if cap := float64(p.MaxDelay); delay > cap {
		delay = cap
	}
	return time.Duration(delay)
}

// IsRetryable reports whether err should trigger a retry under this policy:
// true when RetryOnAny, else true only when the error's category is in the
// allow-list.
func (p *Policy) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if p.RetryOnAny {
		return true
	}
	execErr, ok := err.(*domain.ExecutionError)
	if !ok {
		return false
	}
	for _, allowed := range p.RetryableErrors {
		if execErr.Category == allowed {
			return true
		}
	}
	return false
}
