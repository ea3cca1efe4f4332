package services

import (
	"fmt"
	"sort"
	"strings"

	"kedai/internal/models"
)

// ValidationError reports missing or malformed input. It never reaches the store.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(names, ", "))
}

// NotFoundError reports an unknown order identifier.
type NotFoundError struct {
	OrderID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order %s not found", e.OrderID)
}

// AuthenticityError reports a payment notification whose signature could not be verified.
type AuthenticityError struct {
	OrderID string
	Err     error
}

func (e *AuthenticityError) Error() string {
	return fmt.Sprintf("payment notification for order %s rejected: %v", e.OrderID, e.Err)
}

func (e *AuthenticityError) Unwrap() error {
	return e.Err
}

// InvalidTransitionError reports a status change the lifecycle does not allow.
type InvalidTransitionError struct {
	OrderID string
	From    models.OrderStatus
	To      models.OrderStatus
	Reason  string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("order %s cannot move from %s to %s", e.OrderID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// StoreError wraps a database failure. Reads are safe to retry; writes rely on
// the idempotency of the operation that failed.
type StoreError struct {
	Op      string
	OrderID string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s for order %s failed: %v", e.Op, e.OrderID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
