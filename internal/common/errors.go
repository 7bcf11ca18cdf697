package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
)

// Pipeline error taxonomy. Everything except ErrPipelineFatal is absorbed into
// confidence scores, row flags and the trace.
var (
	ErrLayoutUnrecognized      = errors.New("layout unrecognized")
	ErrRegionExtractionEmpty   = errors.New("no transaction regions found")
	ErrGenerationFailure       = errors.New("generation failure")
	ErrValidationFailure       = errors.New("validation failure")
	ErrArbitrationInconclusive = errors.New("arbitration inconclusive")
	ErrRetryBudgetExhausted    = errors.New("retry budget exhausted")
	ErrPipelineFatal           = errors.New("pipeline fatal")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Fatal wraps cause as a PipelineFatal AppError.
func Fatal(message string, cause error) *AppError {
	if cause == nil {
		return NewAppError("PIPELINE_FATAL", message, ErrPipelineFatal)
	}
	return NewAppError("PIPELINE_FATAL", message, fmt.Errorf("%w: %w", ErrPipelineFatal, cause))
}

// IsFatal reports whether err must surface as a hard failure.
func IsFatal(err error) bool {
	return errors.Is(err, ErrPipelineFatal)
}
