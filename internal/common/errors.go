package common

import (
	"errors"
	"fmt"

	"github.com/lexfield/contract-insight/constants"
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

// Pipeline error taxonomy. The first two abort a run before any analysis;
// ErrModelUnavailable after the summarize/score stage degrades the run to a
// partial report instead of failing it.
var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrCorruptDocument   = errors.New("corrupt document")
	ErrModelUnavailable  = errors.New("model unavailable")
	ErrRunNotFound       = errors.New("run not found")
	ErrInvalidInput      = errors.New("invalid input")
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

// UnsupportedFormatError builds the terminal error for a format with no
// registered handler.
func UnsupportedFormatError(format string) error {
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// CorruptDocumentError builds the terminal error for a payload its declared
// handler cannot parse.
func CorruptDocumentError(format string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrCorruptDocument, format, cause)
}

// ModelUnavailableError is returned once every provider in the fallback
// chain has been exhausted. Attempts preserves the per-provider failures.
type ModelUnavailableError struct {
	Attempts []error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("%v after %d provider attempts", ErrModelUnavailable, len(e.Attempts))
}

func (e *ModelUnavailableError) Unwrap() error {
	return ErrModelUnavailable
}

// StageTimeoutError marks a run that exceeded one stage's deadline. The
// stage name travels with the error so failure records stay attributable.
type StageTimeoutError struct {
	Stage constants.Stage
	Cause error
}

func (e *StageTimeoutError) Error() string {
	return fmt.Sprintf("stage %s timed out: %v", e.Stage, e.Cause)
}

func (e *StageTimeoutError) Unwrap() error {
	return e.Cause
}

// OcrLowConfidenceWarning is non-fatal: recognition below the warning
// threshold downgrades confidence and is surfaced in run diagnostics.
type OcrLowConfidenceWarning struct {
	Page       int
	Confidence float64
}

func (w *OcrLowConfidenceWarning) Error() string {
	return fmt.Sprintf("ocr confidence %.2f below threshold on page %d", w.Confidence, w.Page)
}
