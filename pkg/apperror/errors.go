package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error carrying a stable code and the HTTP status
// the signing proxy answers with.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped cause (not exposed to clients)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps a cause with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// Error codes.
const (
	CodeInvalidConfig        = "CFG_001"
	CodeUnsupportedAlgorithm = "CFG_002"
	CodeSigningFailure       = "SIG_001"
	CodeIdentityUnavailable  = "SIG_002"
	CodeIdentityNotFound     = "SIG_003"
	CodeMalformedQuery       = "SIG_004"
	CodeUpstreamUnavailable  = "PRX_001"
	CodeUpstreamTimeout      = "PRX_002"
	CodePayloadTooLarge      = "PRX_003"
	CodeInternal             = "SYS_001"
)

// ---- Configuration (CFG) ----

func ErrInvalidConfig(message string) *AppError {
	return New(CodeInvalidConfig, "Invalid signing configuration: "+message, http.StatusInternalServerError)
}

func ErrUnsupportedAlgorithm(name string) *AppError {
	return New(CodeUnsupportedAlgorithm, fmt.Sprintf("Unsupported signing algorithm or encoding %q", name), http.StatusInternalServerError)
}

// ---- Signing (SIG) ----

func ErrSigningFailure(err error) *AppError {
	return Wrap(CodeSigningFailure, "Signer could not produce a signature", http.StatusBadGateway, err)
}

// ErrIdentityUnavailable reports a failing identity provider; step names the
// accessor that failed ("client code" or "client secret").
func ErrIdentityUnavailable(step string, err error) *AppError {
	return Wrap(CodeIdentityUnavailable, fmt.Sprintf("Identity provider failed to supply %s", step), http.StatusBadGateway, err)
}

func ErrIdentityNotFound(code string) *AppError {
	return New(CodeIdentityNotFound, fmt.Sprintf("Client identity %q not found", code), http.StatusBadGateway)
}

// ErrMalformedQuery reports a query string that cannot be parsed in full and
// therefore cannot be signed.
func ErrMalformedQuery(err error) *AppError {
	return Wrap(CodeMalformedQuery, "Request query string cannot be signed", http.StatusBadRequest, err)
}

// ---- Proxy (PRX) ----

func ErrUpstreamUnavailable(err error) *AppError {
	return Wrap(CodeUpstreamUnavailable, "Upstream API unavailable", http.StatusBadGateway, err)
}

func ErrUpstreamTimeout(err error) *AppError {
	return Wrap(CodeUpstreamTimeout, "Upstream API timed out", http.StatusGatewayTimeout, err)
}

func ErrPayloadTooLarge(limit int64) *AppError {
	return New(CodePayloadTooLarge, fmt.Sprintf("Request body exceeds %d bytes", limit), http.StatusRequestEntityTooLarge)
}

// ---- System (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}
