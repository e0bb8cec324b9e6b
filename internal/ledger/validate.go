package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for record validation failures.
var (
	ErrMissingCustomer = errors.New("missing customer")
	ErrMissingDate     = errors.New("missing service date")
	ErrMissingID       = errors.New("missing record id")
)

// ValidationError wraps a sentinel with the offending field.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// Validate checks a record before it is written to the ledger.
func Validate(rec ServiceRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return NewValidationError("id", rec.ID, ErrMissingID)
	}
	if strings.TrimSpace(rec.CustomerName) == "" && strings.TrimSpace(rec.CustomerPhone) == "" {
		return NewValidationError("customer", "", ErrMissingCustomer)
	}
	if rec.ServiceDate.IsZero() {
		return NewValidationError("service_date", "", ErrMissingDate)
	}
	return nil
}
