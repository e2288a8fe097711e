package domain

import (
	"context"
	"errors"
)

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Transient failures from external services. The retry policy re-attempts these.
	ErrRateLimited = errors.New("rate limited by external service")
	ErrTimeout     = errors.New("external call timed out")

	// Terminal failures. Never retried.
	ErrInvalidInput   = errors.New("input rejected by generation service")
	ErrSourceNotFound = errors.New("source content not found")
	ErrSourcePrivate  = errors.New("source content is private")
	ErrQuotaExceeded  = errors.New("storage quota exceeded")
	ErrAuthFailed     = errors.New("storage authentication failed")

	// Cancellation is a status, not a failure of the work itself.
	ErrCancelled = errors.New("cancelled before dispatch")

	// ErrRetriesExhausted wraps the last transient error once the attempt
	// budget is spent; from that point the failure is terminal.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// Batch lifecycle guards
	ErrBatchTerminal    = errors.New("batch is already in a terminal state")
	ErrBatchNotTerminal = errors.New("batch is still running")
	ErrNoFailedLinks    = errors.New("batch has no failed links")
	ErrTooManyBatches   = errors.New("concurrent batch limit reached")

	// Storage plumbing
	ErrInvalidExecContext = errors.New("invalid SQL execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrLockBusy           = errors.New("resource is locked by another operation")
)

// IsRetryable reports whether err is a transient failure worth re-attempting.
// Classification is explicit: only rate-limit and timeout signals qualify;
// everything else propagates immediately.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}
