package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrCancelled    ErrorCode = "CANCELLED"

	// Interaction errors
	ErrNonInteractive ErrorCode = "NON_INTERACTIVE"

	// Configuration errors
	ErrConfigLoad      ErrorCode = "CONFIG_LOAD"
	ErrConfigParse     ErrorCode = "CONFIG_PARSE"
	ErrConfigInvalid   ErrorCode = "CONFIG_INVALID"
	ErrProfileNotFound ErrorCode = "PROFILE_NOT_FOUND"

	// Mapping errors
	ErrMappingNotFound  ErrorCode = "MAPPING_NOT_FOUND"
	ErrMappingCollision ErrorCode = "MAPPING_COLLISION"

	// Symlink errors
	ErrConflict          ErrorCode = "CONFLICT"
	ErrBackupUnavailable ErrorCode = "BACKUP_UNAVAILABLE"
	ErrSymlinkCreate     ErrorCode = "SYMLINK_CREATE"

	// Secrets errors
	ErrKeyMissing  ErrorCode = "KEY_MISSING"
	ErrKeyMismatch ErrorCode = "KEY_MISMATCH"
	ErrOracle      ErrorCode = "ORACLE_ERROR"

	// Package errors
	ErrPackageList          ErrorCode = "PACKAGE_LIST_FAILED"
	ErrPackageInstallFailed ErrorCode = "PACKAGE_INSTALL_FAILED"

	// Bootstrap script errors
	ErrScriptBlocked   ErrorCode = "SCRIPT_BLOCKED"
	ErrScriptDangerous ErrorCode = "SCRIPT_DANGEROUS"

	// FileSystem errors
	ErrFileAccess ErrorCode = "FILE_ACCESS"
	ErrFileWrite  ErrorCode = "FILE_WRITE"
	ErrDirCreate  ErrorCode = "DIR_CREATE"
)

// Error represents a structured error with code and details
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is matches any *Error carrying the same code
func (e *Error) Is(target error) bool {
	var targetErr *Error
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new Error with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with an Error
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not an *Error
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not an *Error
func GetErrorDetails(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// Conflict reports a target path occupied by content the engine will not replace
func Conflict(path string) *Error {
	return Newf(ErrConflict, "target %s exists and is not a symlink", path).WithDetail("path", path)
}

// OracleFailure reports a decryption capability failure for a single secret
func OracleFailure(file string, err error) *Error {
	return Wrapf(err, ErrOracle, "decryption failed for %s", file).WithDetail("file", file)
}

// PackageInstallFailed reports a failed batch along with the packages it attempted
func PackageInstallFailed(names []string, err error) *Error {
	return Wrapf(err, ErrPackageInstallFailed, "failed to install %d package(s)", len(names)).
		WithDetail("packages", names)
}
