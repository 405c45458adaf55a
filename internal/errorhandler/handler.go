// Package errorhandler applies a retry policy to a failed operation,
// invoking a caller-supplied retry action and classifying the failure as
// fatal or recovered.
package errorhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/procthread/engine/internal/retrypolicy"
)

// Outcome is the classification ErrorResult carries.
type Outcome int

const (
	OutcomeFatal Outcome = iota
	OutcomeSuccessAfterRetry
)

// ErrorResult is what HandleError returns.
type ErrorResult struct {
	Outcome       Outcome
	AttemptNumber int   // the attempt that succeeded, when Outcome == OutcomeSuccessAfterRetry
	Err           error // the terminal error, when Outcome == OutcomeFatal
}

// Fatal builds a fatal ErrorResult.
func Fatal(err error) *ErrorResult {
	return &ErrorResult{Outcome: OutcomeFatal, Err: err}
}

// SuccessAfterRetry builds a successful-after-retry ErrorResult.
func SuccessAfterRetry(attempt int) *ErrorResult {
	return &ErrorResult{Outcome: OutcomeSuccessAfterRetry, AttemptNumber: attempt}
}

// ErrOperationCancelled is returned as the terminal error when a retry wait
// or attempt observes the caller's cancellation.
var ErrOperationCancelled = errOperationCancelled{}

type errOperationCancelled struct{}

func (errOperationCancelled) Error() string { return "operation cancelled" }

// FatalClassifier lets callers elevate specific error categories to fatal
// regardless of the policy's retry decision. The baseline Handler uses a
// classifier that never does this; there are no absolute-fatal classes
// unless the embedding caller supplies some.
type FatalClassifier func(err error) bool

// RetryAction re-attempts the failed operation. It is given the 1-based
// attempt number about to run.
type RetryAction func(ctx context.Context, attempt int) error

// Handler implements HandleError.
type Handler struct {
	isFatal FatalClassifier
	logger  *slog.Logger
}

// New creates a Handler. A nil classifier means no error is ever
// unconditionally fatal.
func New(isFatal FatalClassifier, logger *slog.Logger) *Handler {
	if isFatal == nil {
		isFatal = func(error) bool { return false }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{isFatal: isFatal, logger: logger}
}

// HandleError runs the recovery sequence: log, check IsFatal, check
// IsRetryable, then retry up to policy.MaxRetries times with DelayFor
// spacing, invoking retryAction on each attempt.
func (h *Handler) HandleError(ctx context.Context, err error, policy *retrypolicy.Policy, retryAction RetryAction) *ErrorResult {
	h.logger.Error("errorhandler: handling error", "error", err)

	if h.isFatal(err) {
		return Fatal(err)
	}
	if !policy.IsRetryable(err) {
		return Fatal(err)
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		delay := policy.DelayFor(attempt + 1)
		select {
		case <-ctx.Done():
			return Fatal(ErrOperationCancelled)
		case <-time.After(delay):
		}

		if runErr := retryAction(ctx, attempt+1); runErr != nil {
			if ctx.Err() != nil {
				return Fatal(ErrOperationCancelled)
			}
			lastErr = runErr
			continue
		}
		return SuccessAfterRetry(attempt + 1)
	}

	return Fatal(lastErr)
}
