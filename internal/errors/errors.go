// Package errors provides the structured error taxonomy for the benchmark.
// Every error carries a category, a code and a retryable flag so that the
// storage adapter can decide what to retry and the runner what to abort on.
package errors

import (
	"errors"
	"fmt"

	"github.com/idbench/idbench/pkg/types"
)

// ErrorCategory classifies errors by the component that raised them.
type ErrorCategory string

const (
	ErrCategoryCodec     ErrorCategory = "CODEC"
	ErrCategoryStorage   ErrorCategory = "STORAGE"
	ErrCategorySchema    ErrorCategory = "SCHEMA"
	ErrCategoryBenchmark ErrorCategory = "BENCHMARK"
	ErrCategoryConfig    ErrorCategory = "CONFIG"
	ErrCategoryInternal  ErrorCategory = "INTERNAL"
)

// Error codes.
const (
	// Codec codes
	CodeEncodingLength    = "ENCODING_LENGTH"
	CodeInvalidEncoding   = "INVALID_ENCODING"
	CodeMonotonicOverflow = "MONOTONIC_OVERFLOW"

	// Storage codes
	CodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
	CodeConstraintViolation = "CONSTRAINT_VIOLATION"
	CodeRetryExhausted      = "RETRY_EXHAUSTED"
	CodeStorageFailed       = "STORAGE_FAILED"

	// Schema codes
	CodeSchemaConflict = "SCHEMA_CONFLICT"
	CodeUnknownTable   = "UNKNOWN_TABLE"

	// Benchmark / config codes
	CodeInvalidArgument = "INVALID_ARGUMENT"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// BenchError is the structured error type used throughout the benchmark.
type BenchError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *BenchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *BenchError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *BenchError) Is(target error) bool {
	var t *BenchError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new BenchError.
func New(category ErrorCategory, code, message string) *BenchError {
	return &BenchError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new BenchError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *BenchError {
	return &BenchError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *BenchError) WithDetails(details map[string]interface{}) *BenchError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var be *BenchError
	if errors.As(err, &be) {
		return be.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a BenchError.
func GetCategory(err error) ErrorCategory {
	var be *BenchError
	if errors.As(err, &be) {
		return be.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a BenchError.
func GetCode(err error) string {
	var be *BenchError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// Only transient storage conditions are retried; codec errors indicate a
// logic bug and schema conflicts need an operator.
func isRetryable(category ErrorCategory, code string) bool {
	return category == ErrCategoryStorage && code == CodeStorageUnavailable
}

// Convenience constructors for common errors.

// NewCodecError classifies an identifier codec failure.
func NewCodecError(message string, cause error) *BenchError {
	code := CodeUnexpected
	switch {
	case errors.Is(cause, types.ErrEncodingLength):
		code = CodeEncodingLength
	case errors.Is(cause, types.ErrInvalidEncoding):
		code = CodeInvalidEncoding
	case errors.Is(cause, types.ErrMonotonicOverflow):
		code = CodeMonotonicOverflow
	}
	return Wrap(ErrCategoryCodec, code, message, cause)
}

func NewStorageError(code, message string, cause error) *BenchError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewSchemaError(code, message string) *BenchError {
	return New(ErrCategorySchema, code, message)
}

func NewInvalidArgument(category ErrorCategory, message string) *BenchError {
	return New(category, CodeInvalidArgument, message)
}

func NewInternalError(message string, cause error) *BenchError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
