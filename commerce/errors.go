/*
errors.go - Error taxonomy for the purchase ledger and the API

PURPOSE:
  All error types in one place. The HTTP layer maps them to status codes,
  the jobs layer uses them to decide what is worth retrying.

ERROR CATEGORIES:
  1. Validation - malformed or out-of-range input, rejected before persistence
  2. Stock - insufficient stock (rejection) or a lost decrement race (retry)
  3. Lookup - referenced product/client/purchase missing
  4. Auth - missing, invalid or expired credentials

USAGE:
  var stockErr *commerce.InsufficientStockError
  if errors.As(err, &stockErr) {
      fmt.Println(stockErr.Available)
  }

  if commerce.IsRetryable(err) {
      // caller may resubmit after re-reading stock
  }

SEE ALSO:
  - ledger.go: Produces these errors
  - api/errors.go: Maps them to HTTP responses
*/
package commerce

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when input fails a business rule.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientStock is returned when a purchase asks for more than is in stock.
	// It is a rejection: resubmitting the same request will fail again.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrStockDecrement is returned when the conditional stock update lost a race.
	ErrStockDecrement = errors.New("stock decrement failed")

	// ErrConcurrentModification is returned when a status transition lost a race.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned for missing, invalid or expired credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("duplicate key")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError collects field-level messages.
type ValidationError struct {
	Fields map[string][]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string][]string)}
}

// Add records a message for a field. Messages read as "<Field> <message>".
func (e *ValidationError) Add(field, message string) {
	e.Fields[field] = append(e.Fields[field], message)
}

func (e *ValidationError) HasErrors() bool { return len(e.Fields) > 0 }

// OrNil returns nil when nothing was recorded, so callers can `return v.OrNil()`.
func (e *ValidationError) OrNil() error {
	if e == nil || !e.HasErrors() {
		return nil
	}
	return e
}

// FullMessages returns "Quantity must be greater than 0" style messages, sorted by field.
func (e *ValidationError) FullMessages() []string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var out []string
	for _, f := range fields {
		label := humanize(f)
		for _, msg := range e.Fields[f] {
			out = append(out, label+" "+msg)
		}
	}
	return out
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.FullMessages(), ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientStockError carries the stock that was available when the
// purchase was rejected.
type InsufficientStockError struct {
	ProductID ProductID
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("quantity exceeds available stock (%d available)", e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// StockDecrementError means the stock check passed but the atomic decrement
// did not, because a concurrent purchase took the stock first.
type StockDecrementError struct {
	ProductID ProductID
	Requested int
	Err       error
}

func (e *StockDecrementError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stock decrement failed for product %d (requested %d): %v", e.ProductID, e.Requested, e.Err)
	}
	return fmt.Sprintf("stock decrement failed for product %d (requested %d)", e.ProductID, e.Requested)
}

func (e *StockDecrementError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrStockDecrement, e.Err}
	}
	return []error{ErrStockDecrement}
}

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Couldn't find %s with 'id'=%v", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// UnauthorizedError carries a caller-safe message only.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string { return e.Message }

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStockDecrement) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsClientError returns true if the error is due to invalid client input.
// A lost stock race is not a client error even though it wraps the
// insufficient stock rejection.
func IsClientError(err error) bool {
	if errors.Is(err, ErrStockDecrement) {
		return false
	}
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrDuplicate)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func humanize(field string) string {
	s := strings.ReplaceAll(field, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
