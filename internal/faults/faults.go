// Package faults defines the error taxonomy shared by the evidence core.
package faults

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeInsufficientData Code = "INSUFFICIENT_DATA"
	CodeStorage          Code = "STORAGE_ERROR"
	CodeIntegrity        Code = "INTEGRITY_VIOLATION"
	CodeNotFound         Code = "NOT_FOUND"
)

// ValidationItem describes one failed rule.
type ValidationItem struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code
	Message  string
	Items    []ValidationItem
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Code == CodeStorage {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is comparisons by code.
var (
	ErrValidation       = &Error{Code: CodeValidation}
	ErrInsufficientData = &Error{Code: CodeInsufficientData}
	ErrStorage          = &Error{Code: CodeStorage}
	ErrIntegrity        = &Error{Code: CodeIntegrity}
	ErrNotFound         = &Error{Code: CodeNotFound}
)

// Validation builds a validation error from one or more failed rules.
func Validation(message string, items ...ValidationItem) *Error {
	return &Error{Code: CodeValidation, Message: message, Items: items}
}

// InsufficientData reports a derivation over an empty window.
func InsufficientData(message string) *Error {
	return &Error{Code: CodeInsufficientData, Message: message}
}

// Storage wraps an opaque failure from the record store. The cause is kept
// as-is so callers can still inspect it.
func Storage(op string, cause error) *Error {
	if cause == nil {
		return nil
	}
	var existing *Error
	if errors.As(cause, &existing) && existing.Code == CodeStorage {
		return existing
	}
	return &Error{Code: CodeStorage, Message: op, Cause: cause}
}

// Integrity reports an attempted mutation of protected evidence.
func Integrity(message string, metadata map[string]string) *Error {
	return &Error{Code: CodeIntegrity, Message: message, Metadata: metadata}
}

// NotFound reports a missing record.
func NotFound(kind, id string) *Error {
	return &Error{
		Code:     CodeNotFound,
		Message:  fmt.Sprintf("%s %s not found", kind, id),
		Metadata: map[string]string{"kind": kind, "id": id},
	}
}

// CodeOf returns the code of the first faults.Error in the chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
