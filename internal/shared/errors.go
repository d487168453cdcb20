package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition is matched by every InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrOverReceipt is matched by every OverReceiptError.
	ErrOverReceipt = errors.New("over receipt")
	// ErrRetryable is matched by every RetryableError.
	ErrRetryable = errors.New("retryable storage failure")
	// ErrInsufficientStock is returned when a debit would leave a negative balance.
	ErrInsufficientStock = errors.New("negative stock not allowed")
)

// ValidationError reports input rejected before any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

// Validation builds a ValidationError.
func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a missing document or reference.
type NotFoundError struct {
	Kind string
	ID   int64
}

// NotFound builds a NotFoundError.
func NotFound(kind string, id int64) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidTransitionError reports a workflow action attempted from a status that forbids it.
type InvalidTransitionError struct {
	Kind   string
	ID     int64
	From   string
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s %d: cannot %s from status %s", e.Kind, e.ID, e.Action, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// OverReceiptError reports a receive increment larger than the open quantity of a purchase line.
type OverReceiptError struct {
	PurchaseID int64
	LineID     int64
	Requested  int64
	Remaining  int64
}

func (e *OverReceiptError) Error() string {
	return fmt.Sprintf("purchase %d line %d: receive %d exceeds remaining %d", e.PurchaseID, e.LineID, e.Requested, e.Remaining)
}

func (e *OverReceiptError) Is(target error) bool { return target == ErrOverReceipt }

// RetryableError wraps a storage failure the caller may resubmit.
type RetryableError struct {
	Op  string
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

func (e *RetryableError) Is(target error) bool { return target == ErrRetryable }
