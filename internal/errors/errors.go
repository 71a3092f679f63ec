package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	CodeValidation  = "E100"
	CodeAuth        = "E110"
	CodeDatabase    = "E200"
	CodeExternalAPI = "E300"
	CodeNetwork     = "E310"
	CodeAPIRequest  = "E320"
	CodeState       = "E400"
	CodeRateLimit   = "E500"
	CodeInternal    = "E900"
)

// DefaultUserMessage is shown whenever an error carries no safer message of its own.
const DefaultUserMessage = "❌ Something went wrong. Please try again later."

type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	// StatusCode is the HTTP status returned by an upstream API, if any.
	StatusCode int
	cause      error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        CodeValidation,
		Message:     msg,
		UserMessage: fmt.Sprintf("Invalid input. %s", msg),
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

func NewAuthError(msg string) *AppError {
	return &AppError{
		Code:        CodeAuth,
		Message:     msg,
		UserMessage: "🔒 Your session has expired or you are not logged in. Use /login to continue.",
		Severity:    SeverityLow,
		Retryable:   false,
		StatusCode:  http.StatusUnauthorized,
	}
}

func NewDatabaseError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeDatabase,
		Message:     fmt.Sprintf("Database error: %s", underlyingMsg),
		UserMessage: "Temporary problem, please try again later.",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

// NewExternalAPIError describes a retryable upstream failure (5xx or 429).
func NewExternalAPIError(apiName string, statusCode int, cause error) *AppError {
	return &AppError{
		Code:        CodeExternalAPI,
		Message:     fmt.Sprintf("External API error: %s (status %d)", apiName, statusCode),
		UserMessage: "The payments service is temporarily unavailable. Please try again later.",
		Severity:    SeverityMedium,
		Retryable:   true,
		StatusCode:  statusCode,
		cause:       cause,
	}
}

// NewNetworkError describes a transport failure before any response was received.
func NewNetworkError(apiName string, cause error) *AppError {
	return &AppError{
		Code:        CodeNetwork,
		Message:     fmt.Sprintf("Network error calling %s", apiName),
		UserMessage: "The payments service could not be reached. Please try again later.",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

// NewAPIRequestError describes a non-retryable 4xx rejection. detail is the upstream
// message and is only logged.
func NewAPIRequestError(apiName string, statusCode int, detail string) *AppError {
	return &AppError{
		Code:        CodeAPIRequest,
		Message:     fmt.Sprintf("%s rejected request (status %d): %s", apiName, statusCode, detail),
		UserMessage: "❌ The request was rejected by the payments service. Please check the details and try again.",
		Severity:    SeverityLow,
		Retryable:   false,
		StatusCode:  statusCode,
	}
}

func NewStateError(msg string) *AppError {
	return &AppError{
		Code:        CodeState,
		Message:     msg,
		UserMessage: "This action is not available right now. Use /cancel and start again.",
		Severity:    SeverityMedium,
		Retryable:   false,
		cause:       nil,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        CodeRateLimit,
		Message:     fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Too many requests. Try again in %d seconds.", retryAfter),
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

func NewInternalError(cause error) *AppError {
	msg := "internal error"
	if cause != nil {
		msg = cause.Error()
	}

	return &AppError{
		Code:        CodeInternal,
		Message:     msg,
		UserMessage: DefaultUserMessage,
		Severity:    SeverityCritical,
		Retryable:   false,
		cause:       cause,
	}
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == CodeAuth
}

// As extracts an *AppError from the chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if err == nil || !errors.As(err, &appErr) || appErr == nil {
		return nil, false
	}
	return appErr, true
}
