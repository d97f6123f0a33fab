// Package domain holds the typed errors shared by the booking core.
package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrWrongStep is returned when a workflow operation is called in a step that does not accept it.
	ErrWrongStep = errors.New("operation not allowed in current step")
	// ErrReferenceExhausted is returned when no unique reference code could be generated.
	ErrReferenceExhausted = errors.New("could not generate a unique reference code")
)

// NotFoundError reports an unknown venue or booking.
type NotFoundError struct {
	Kind string // "venue", "booking"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// InvalidSelectionError reports a date or time that is not currently offered.
type InvalidSelectionError struct {
	Field  string // "date", "time"
	Value  string
	Reason string
}

func (e *InvalidSelectionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s %q is not available", e.Field, e.Value)
	}
	return fmt.Sprintf("%s %q is not available: %s", e.Field, e.Value, e.Reason)
}

// FieldError is a validation failure tied to one form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field-level failure of a submitted form.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid booking details: " + strings.Join(parts, "; ")
}

// Add records a failure for field.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Has reports whether field failed validation.
func (e *ValidationError) Has(field string) bool {
	_, ok := e.Message(field)
	return ok
}

// Message returns the failure message recorded for field.
func (e *ValidationError) Message(field string) (string, bool) {
	for _, f := range e.Fields {
		if f.Field == field {
			return f.Message, true
		}
	}
	return "", false
}

// Map returns the failures keyed by field name.
func (e *ValidationError) Map() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		out[f.Field] = f.Message
	}
	return out
}

// Empty reports whether no failure was recorded.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

// FieldNames lists the failed fields in sorted order.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	sort.Strings(names)
	return names
}

// DuplicateBookingError reports that the slot already holds an active booking.
type DuplicateBookingError struct {
	VenueID string
	Date    string
	Time    string
}

func (e *DuplicateBookingError) Error() string {
	return fmt.Sprintf("slot %s at %s on venue %s is no longer available, choose another time", e.Time, e.Date, e.VenueID)
}

// ConflictError reports a status change that would break slot exclusivity.
type ConflictError struct {
	BookingID     string
	ConflictingID string
	Reason        string
}

func (e *ConflictError) Error() string {
	if e.ConflictingID != "" {
		return fmt.Sprintf("booking %s cannot be changed: slot is taken by booking %s", e.BookingID, e.ConflictingID)
	}
	return fmt.Sprintf("booking %s cannot be changed: %s", e.BookingID, e.Reason)
}

// StorageError wraps a persistence failure. It is the only retryable error.
type StorageError struct {
	Op     string // "load", "save"
	UserID string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s for user %s: %v", e.Op, e.UserID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the caller may retry the same call unchanged.
func IsRetryable(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
