// Package errors provides the coded error type used across the video service.
// A code classifies the failure (bad request, download, transcode, upload,
// cleanup) and decides the HTTP status a handler answers with.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Code represents an error code for categorization.
type Code string

const (
	CodeInternal    Code = "INTERNAL_ERROR"
	CodeBadRequest  Code = "BAD_REQUEST"
	CodeConflict    Code = "CONFLICT"
	CodeTimeout     Code = "TIMEOUT"
	CodeUnavailable Code = "UNAVAILABLE"

	// Pipeline stage failures.
	CodeDownloadFailed  Code = "DOWNLOAD_FAILED"
	CodeTranscodeFailed Code = "TRANSCODE_FAILED"
	CodeUploadFailed    Code = "UPLOAD_FAILED"
	CodeCleanupFailed   Code = "CLEANUP_FAILED"
)

// Error is a coded error with operation context and a captured stack.
type Error struct {
	// Code is the error code for categorization.
	Code Code
	// Message is the human-readable error message.
	Message string
	// Op is the operation that failed (e.g. "pipeline.download").
	Op string
	// Err is the underlying error.
	Err error
	// Fields contains additional context fields.
	Fields map[string]any
	// Stack contains the stack trace at error creation.
	Stack []Frame
}

// Frame represents a single stack frame.
type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

func (e *Error) Error() string {
	var b strings.Builder

	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}

	if e.Code != "" {
		b.WriteString("[")
		b.WriteString(string(e.Code))
		b.WriteString("] ")
	}

	b.WriteString(e.Message)

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithField adds a field to the error.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeBadRequest:
		return 400
	case CodeConflict:
		return 409
	case CodeUnavailable:
		return 503
	case CodeTimeout:
		return 504
	default:
		// Stage failures are all reported as 500 so the push sender redelivers.
		return 500
	}
}

// StackTrace returns the stack trace as a formatted string.
func (e *Error) StackTrace() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "  %s:%d %s\n", f.File, f.Line, f.Function)
	}
	return b.String()
}

// New creates a new error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps err, keeping its code when it is already an *Error.
func Wrap(err error, op string, message string) *Error {
	if err == nil {
		return nil
	}

	code := CodeInternal
	var fields map[string]any
	var e *Error
	if errors.As(err, &e) {
		code = e.Code
		fields = e.Fields
	}

	return &Error{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
		Fields:  fields,
		Stack:   captureStack(2),
	}
}

// Wrapf wraps an error with formatted message.
func Wrapf(err error, op string, format string, args ...any) *Error {
	return Wrap(err, op, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific code.
func WrapWithCode(err error, code Code, op string, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
		Stack:   captureStack(2),
	}
}

// BadRequest creates a bad request error.
func BadRequest(message string) *Error {
	return New(CodeBadRequest, message)
}

// BadRequestf creates a bad request error with formatted message.
func BadRequestf(format string, args ...any) *Error {
	return Newf(CodeBadRequest, format, args...)
}

// Conflict creates a conflict error.
func Conflict(message string) *Error {
	return New(CodeConflict, message)
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// GetHTTPStatus extracts the HTTP status from an error.
func GetHTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return 500
}

// GetFields extracts fields from an error.
func GetFields(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) && e.Fields != nil {
		return e.Fields
	}
	return nil
}

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsBadRequest checks if an error is a bad request error.
func IsBadRequest(err error) bool {
	return IsCode(err, CodeBadRequest)
}

// IsStageFailure reports whether err came from the download, transcode or
// upload stage of a job.
func IsStageFailure(err error) bool {
	switch GetCode(err) {
	case CodeDownloadFailed, CodeTranscodeFailed, CodeUploadFailed:
		return true
	}
	return false
}

func captureStack(skip int) []Frame {
	const maxDepth = 32
	var pcs [maxDepth]uintptr
	n := runtime.Callers(skip+1, pcs[:])

	frames := make([]Frame, 0, n)
	callersFrames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := callersFrames.Next()

		if strings.Contains(frame.File, "runtime/") {
			if !more {
				break
			}
			continue
		}

		frames = append(frames, Frame{
			File:     frame.File,
			Line:     frame.Line,
			Function: frame.Function,
		})

		if !more || len(frames) >= 10 {
			break
		}
	}

	return frames
}

// As is a convenience wrapper for errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is a convenience wrapper for errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Join is a convenience wrapper for errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
