package domain

import (
	"errors"
	"strings"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrValidation       = errors.New("validation failed")
	ErrProductNotFound  = errors.New("product not found")
	ErrPaymentProvider  = errors.New("payment provider error")
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrPersistence      = errors.New("persistence error")
	ErrCheckoutFailed   = errors.New("checkout failed")
	ErrCheckoutConflict = errors.New("checkout conflict")
)

// ValidationError reports a rejected request. Fields holds the offending json
// field names when the rejection is about specific inputs.
type ValidationError struct {
	Reason string
	Fields []string
}

func NewValidationError(reason string, fields ...string) *ValidationError {
	return &ValidationError{Reason: reason, Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	return e.Reason + ": " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
