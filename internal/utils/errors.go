package utils

import (
	"errors"
	"fmt"

	"github.com/dl-alexandre/gosync/internal/types"
)

// Exit codes
const (
	ExitSuccess = 0
	// Auth errors (10-19)
	ExitAuthRequired = 10
	ExitAuthExpired  = 11
	// File operation errors (20-29)
	ExitFileNotFound     = 20
	ExitPermissionDenied = 21
	ExitDiskFull         = 22
	ExitParentNotFound   = 23
	// Network errors (30-39)
	ExitNetworkError        = 30
	ExitInternetUnreachable = 31
	ExitTransientServer     = 32
	// Validation errors (40-49)
	ExitInvalidArgument      = 40
	ExitInvalidSyncSelection = 41
	ExitConfigLoadFailed     = 42
	// Cancelled
	ExitCancelled = 50
	// Unknown
	ExitUnknown = 99
)

// Error codes (tool-owned, stable)
const (
	ErrCodeAuthRequired         = "AUTH_REQUIRED"
	ErrCodeAuthExpired          = "AUTH_EXPIRED"
	ErrCodeAuthClientMissing    = "AUTH_CLIENT_MISSING"
	ErrCodeFileNotFound         = "FILE_NOT_FOUND"
	ErrCodeParentNotFound       = "PARENT_NOT_FOUND"
	ErrCodePermissionDenied     = "PERMISSION_DENIED"
	ErrCodeDiskFull             = "DISK_FULL"
	ErrCodeTransientServer      = "TRANSIENT_SERVER_ERROR"
	ErrCodeInternetUnreachable  = "INTERNET_UNREACHABLE"
	ErrCodeQueryFailed          = "QUERY_FAILED"
	ErrCodeInvalidArgument      = "INVALID_ARGUMENT"
	ErrCodeInvalidSyncSelection = "INVALID_SYNC_SELECTION"
	ErrCodeConfigLoadFailed     = "CONFIG_LOAD_FAILED"
	ErrCodeChecksumMismatch     = "CHECKSUM_MISMATCH"
	ErrCodeCancelled            = "CANCELLED"
	ErrCodeInternalError        = "INTERNAL_ERROR"
	ErrCodeUnknown              = "UNKNOWN"
)

// CLIErrorBuilder helps construct CLIError instances
type CLIErrorBuilder struct {
	err types.CLIError
}

// NewCLIError creates a new error builder
func NewCLIError(code, message string) *CLIErrorBuilder {
	return &CLIErrorBuilder{
		err: types.CLIError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *CLIErrorBuilder) WithHTTPStatus(status int) *CLIErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *CLIErrorBuilder) WithDriveReason(reason string) *CLIErrorBuilder {
	b.err.DriveReason = reason
	return b
}

func (b *CLIErrorBuilder) WithRetryable(retryable bool) *CLIErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *CLIErrorBuilder) WithContext(key string, value interface{}) *CLIErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *CLIErrorBuilder) Build() types.CLIError {
	return b.err
}

// Err builds the CLIError and wraps it in an AppError.
func (b *CLIErrorBuilder) Err() *AppError {
	return NewAppError(b.err)
}

// GetExitCode returns the exit code for an error code
func GetExitCode(errorCode string) int {
	mapping := map[string]int{
		ErrCodeAuthRequired:         ExitAuthRequired,
		ErrCodeAuthExpired:          ExitAuthExpired,
		ErrCodeAuthClientMissing:    ExitAuthRequired,
		ErrCodeFileNotFound:         ExitFileNotFound,
		ErrCodeParentNotFound:       ExitParentNotFound,
		ErrCodePermissionDenied:     ExitPermissionDenied,
		ErrCodeDiskFull:             ExitDiskFull,
		ErrCodeTransientServer:      ExitTransientServer,
		ErrCodeInternetUnreachable:  ExitInternetUnreachable,
		ErrCodeQueryFailed:          ExitNetworkError,
		ErrCodeChecksumMismatch:     ExitNetworkError,
		ErrCodeInvalidArgument:      ExitInvalidArgument,
		ErrCodeInvalidSyncSelection: ExitInvalidSyncSelection,
		ErrCodeConfigLoadFailed:     ExitConfigLoadFailed,
		ErrCodeCancelled:            ExitCancelled,
	}
	if code, ok := mapping[errorCode]; ok {
		return code
	}
	return ExitUnknown
}

// AppError is a custom error type that carries CLI error info
type AppError struct {
	CLIError types.CLIError
	cause    error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.CLIError.Code, e.CLIError.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// NewAppError creates an AppError from a CLIError
func NewAppError(cliErr types.CLIError) *AppError {
	return &AppError{CLIError: cliErr}
}

// WrapAppError creates an AppError that keeps cause in its chain.
func WrapAppError(cliErr types.CLIError, cause error) *AppError {
	return &AppError{CLIError: cliErr, cause: cause}
}

// ErrorCode returns the taxonomy code of err, or "" when err carries none.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError.Code
	}
	return ""
}

func hasCode(err error, codes ...string) bool {
	code := ErrorCode(err)
	if code == "" {
		return false
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeFileNotFound)
}

func IsParentNotFound(err error) bool {
	return hasCode(err, ErrCodeParentNotFound)
}

func IsInternetUnreachable(err error) bool {
	return hasCode(err, ErrCodeInternetUnreachable)
}

func IsTransient(err error) bool {
	return hasCode(err, ErrCodeTransientServer)
}

func IsAuthenticationFailed(err error) bool {
	return hasCode(err, ErrCodeAuthRequired, ErrCodeAuthExpired, ErrCodeAuthClientMissing)
}

func IsInvalidSyncSelection(err error) bool {
	return hasCode(err, ErrCodeInvalidSyncSelection)
}

func IsConfigLoadFailed(err error) bool {
	return hasCode(err, ErrCodeConfigLoadFailed)
}
