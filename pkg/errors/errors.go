package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrDenied
	ErrCodec
	ErrAuditWrite
	ErrInternal
)

// Sentinels for errors.Is checks across package boundaries. Callers outside
// the core only ever see not-found, denied or internal; denied is rendered
// identically to not-found where resource existence itself is sensitive.
var (
	ErrResourceNotFound    = errors.New("resource not found")
	ErrAuthorizationDenied = errors.New("insufficient permissions")
	ErrPHICodec            = errors.New("protected field transform failed")
	ErrAuditWriteFailure   = errors.New("audit write failed")
)

func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     errors.Join(ErrResourceNotFound, err),
	}
}

// NewDenied carries no detail about why the caller was denied.
func NewDenied() *AppError {
	return &AppError{
		Code:    ErrDenied,
		Message: "insufficient permissions",
		Err:     ErrAuthorizationDenied,
	}
}

func NewCodec(err error) *AppError {
	return &AppError{
		Code:    ErrCodec,
		Message: "internal server error",
		Err:     errors.Join(ErrPHICodec, err),
	}
}

func NewAuditWrite(err error) *AppError {
	return &AppError{
		Code:    ErrAuditWrite,
		Message: "audit write failed",
		Err:     errors.Join(ErrAuditWriteFailure, err),
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// IsNotFound reports whether err should surface as a not-found response.
// Authorization denials collapse into this on purpose: a caller without
// visibility into a resource must not be able to confirm it exists.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrResourceNotFound) || errors.Is(err, ErrAuthorizationDenied)
}
