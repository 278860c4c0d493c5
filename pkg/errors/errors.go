package errors

import (
	"errors"
	"fmt"
)

// Domain error types for business logic

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")
)

// Accounting-specific errors

var (
	// ErrIdentityMismatch indicates an observed order state references an
	// exchange order id that does not match the order being updated
	ErrIdentityMismatch = errors.New("order identity mismatch")

	// ErrInvalidConfiguration indicates a position was constructed with an
	// invalid or incomplete configuration (e.g. margin mode without an
	// interest rate)
	ErrInvalidConfiguration = errors.New("invalid position configuration")

	// ErrUnknownOrderSide indicates an order side that matches neither the
	// position's entry nor exit side nor a stop-loss order
	ErrUnknownOrderSide = errors.New("unknown order side")

	// ErrPositionNotFound indicates position not found
	ErrPositionNotFound = errors.New("position not found")

	// ErrPositionClosed indicates an operation on an already closed position
	ErrPositionClosed = errors.New("position already closed")

	// ErrOrderNotFound indicates order not found
	ErrOrderNotFound = errors.New("order not found")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New creates a new error from a message
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
