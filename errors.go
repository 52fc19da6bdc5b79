package rentledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("rentledger: not found")
	ErrAlreadyExists = errors.New("rentledger: already exists")
	ErrInvalidInput  = errors.New("rentledger: invalid input")

	// Entity lookup errors
	ErrLeaseNotFound   = errors.New("rentledger: lease not found")
	ErrChargeNotFound  = errors.New("rentledger: charge not found")
	ErrPaymentNotFound = errors.New("rentledger: payment not found")

	// Fact validation errors
	ErrNonPositiveAmount = errors.New("rentledger: amount must be positive")
	ErrUnknownKind       = errors.New("rentledger: unknown charge kind")
	ErrUnknownMethod     = errors.New("rentledger: unknown payment method")

	// Allocation errors
	ErrEmptyAllocationRequest     = errors.New("rentledger: empty allocation request")
	ErrInsufficientPaymentBalance = errors.New("rentledger: allocation exceeds unapplied payment balance")
	ErrChargeOverAllocation       = errors.New("rentledger: allocation exceeds open charge balance")
	ErrBoundaryMismatch           = errors.New("rentledger: charge belongs to a different org or lease")

	// Rent generation errors
	ErrInvalidMonth          = errors.New("rentledger: month must be between 1 and 12")
	ErrOutOfLeaseTerm        = errors.New("rentledger: month outside lease term")
	ErrMissingRentAmount     = errors.New("rentledger: lease has no rent amount configured")
	ErrNonPositiveRentAmount = errors.New("rentledger: lease rent amount must be positive")

	// Store errors
	ErrContention        = errors.New("rentledger: row lock contention, retry")
	ErrStoreClosed       = errors.New("rentledger: store is closed")
	ErrTransactionFailed = errors.New("rentledger: transaction failed")
	ErrMigrationFailed   = errors.New("rentledger: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("rentledger: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "rentledger: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("rentledger: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrLeaseNotFound) ||
		errors.Is(err, ErrChargeNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsInvariantViolation returns true if the error reports a rejected write
// that would have broken a ledger invariant. These errors are not retryable;
// the request itself is wrong.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrNonPositiveAmount) ||
		errors.Is(err, ErrUnknownKind) ||
		errors.Is(err, ErrUnknownMethod) ||
		errors.Is(err, ErrEmptyAllocationRequest) ||
		errors.Is(err, ErrInsufficientPaymentBalance) ||
		errors.Is(err, ErrChargeOverAllocation) ||
		errors.Is(err, ErrBoundaryMismatch) ||
		errors.Is(err, ErrOutOfLeaseTerm) ||
		errors.Is(err, ErrMissingRentAmount) ||
		errors.Is(err, ErrNonPositiveRentAmount)
}

// IsRetryable returns true if the error is temporary and the operation can be
// retried. Lock contention is the expected one: callers retry the whole
// operation, which re-derives every balance from scratch.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrContention) ||
		errors.Is(err, ErrTransactionFailed)
}
