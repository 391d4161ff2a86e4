package tablebill

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/tablebill/gateway"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("tablebill: not found")
	ErrAlreadyExists = errors.New("tablebill: already exists")
	ErrInvalidInput  = errors.New("tablebill: invalid input")
	ErrUnauthorized  = errors.New("tablebill: unauthorized")

	// Ledger errors
	ErrTableNotFound = errors.New("tablebill: table not found")
	ErrDishNotFound  = errors.New("tablebill: dish not found")

	// Split errors
	ErrSplitNotFound = errors.New("tablebill: split not found")
	ErrSplitActive   = errors.New("tablebill: a split session is already open")

	// Payment errors
	ErrNothingToPay        = errors.New("tablebill: nothing to pay")
	ErrIntentNotFound      = errors.New("tablebill: payment intent not found")
	ErrIntentExpired       = errors.New("tablebill: payment intent expired")
	ErrInstallmentRejected = errors.New("tablebill: installment plan not available")
	ErrPaymentDeclined     = errors.New("tablebill: payment declined")
	ErrAmountChanged       = errors.New("tablebill: amount owed changed since the charge was priced")

	// Store errors
	ErrStoreNotReady   = errors.New("tablebill: store not ready")
	ErrStoreClosed     = errors.New("tablebill: store is closed")
	ErrMigrationFailed = errors.New("tablebill: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError = types.ValidationError

// GatewayError reports a failed charge attempt. The intent's attempt counter
// has already been advanced and saved when this is returned, so a retry
// uses a fresh idempotency key.
type GatewayError struct {
	IntentID id.IntentID
	Attempt  int
	Reason   string
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("tablebill: gateway charge %s attempt %d failed: %s", e.IntentID, e.Attempt, e.Reason)
	}
	return fmt.Sprintf("tablebill: gateway charge %s attempt %d failed", e.IntentID, e.Attempt)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// AmountMismatchError reports a captured charge whose base no longer
// matches what the participant owes on a fresh read. Nothing is recorded;
// the intent is kept so the charge can be reconciled.
type AmountMismatchError struct {
	IntentID id.IntentID
	Charged  types.Money
	Owed     types.Money
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("tablebill: intent %s was priced at %s but %s is owed now", e.IntentID, e.Charged, e.Owed)
}

func (e *AmountMismatchError) Unwrap() error { return ErrAmountChanged }

// TransientError wraps a failure the caller may retry unchanged.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("tablebill: %s: temporary failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// NonCriticalRecordingError is a failure in the background part of
// recording a payment. The payment itself stands; these are logged and
// reported to plugins, never returned to the payer.
type NonCriticalRecordingError struct {
	Op  string
	Err error
}

func (e *NonCriticalRecordingError) Error() string {
	return fmt.Sprintf("tablebill: non-critical %s failed: %v", e.Op, e.Err)
}

func (e *NonCriticalRecordingError) Unwrap() error { return e.Err }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTableNotFound) ||
		errors.Is(err, ErrDishNotFound) ||
		errors.Is(err, ErrSplitNotFound) ||
		errors.Is(err, ErrIntentNotFound)
}

// IsValidation returns true if the error is a ValidationError or an
// invalid input sentinel.
func IsValidation(err error) bool {
	var ve types.ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInstallmentRejected) ||
		errors.Is(err, ErrNothingToPay)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te) ||
		errors.Is(err, gateway.ErrTransient) ||
		errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, context.DeadlineExceeded)
}
