package core

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel error kinds returned by the core services. Callers classify with
// errors.Is; the concrete message carries the operation-specific detail.
var (
	// ErrInvalidInput marks structural or semantic validation failures at the
	// service boundary (bad quantities, missing fields, wrong product types).
	ErrInvalidInput = errors.New("invalid input")

	// ErrForbidden marks a missing permission for the acting user.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState marks an operation that is not legal in the entity's
	// current state (e.g. closing a VOID sale).
	ErrInvalidState = errors.New("invalid state")

	// ErrInsufficientStock marks a FIFO consumption that would go negative.
	// It is fatal to the enclosing operation and never retried.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrPriceDeviation marks a purchase line rejected by the plausibility rule.
	ErrPriceDeviation = errors.New("price deviation")

	// ErrRefundExceeded marks a refund that would exceed the payment or the
	// invoice cap.
	ErrRefundExceeded = errors.New("refund exceeded")

	// ErrInvoiceVoid marks an operation attempted against a VOID invoice.
	ErrInvoiceVoid = errors.New("invoice void")

	// ErrHasCompletedPayments blocks invoice cancellation while completed
	// payments carry un-refunded amounts.
	ErrHasCompletedPayments = errors.New("invoice has completed payments")

	// ErrConcurrency marks a lock-wait timeout or serialization conflict.
	// The whole operation may be retried by the orchestration layer.
	ErrConcurrency = errors.New("concurrency conflict")
)

// Postgres error codes that indicate a retryable concurrency conflict.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// classifyDBError maps retryable Postgres failures to ErrConcurrency and
// passes every other error through unchanged. nil stays nil.
func classifyDBError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return errors.Join(ErrConcurrency, err)
		}
	}
	return err
}

// IsRetryable reports whether the operation that produced err may be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrency)
}

// isUniqueViolation reports a Postgres unique-constraint violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
