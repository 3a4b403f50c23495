package gatesdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/chatgate/pkg/httpx"
)

// ============================================================================
// Gateway Error Codes
// ============================================================================

const (
	// Device authorization grant error codes per RFC 8628
	ErrorCodeAuthorizationPending = "authorization_pending"
	ErrorCodeAccessDenied         = "access_denied"
	ErrorCodeExpiredToken         = "expired_token"

	ErrorCodeInvalidRequest    = "invalid_request"
	ErrorCodeUnauthorized      = "unauthorized"
	ErrorCodeInsufficientScope = "insufficient_scope"
	ErrorCodeRateLimited       = "rate_limit_exceeded"
	ErrorCodePaymentRequired   = "payment_required"
	ErrorCodeUpstreamError     = "upstream_error"
	ErrorCodeAlreadyResolved   = "already_resolved"
	ErrorCodeServerError       = "server_error"
)

// ============================================================================
// APIError - standard gateway error type
// ============================================================================

// APIError represents a JSON error response from the gateway. It implements
// the error interface and is used both by the server (to write HTTP
// responses) and by the SDK client (to represent errors).
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the machine-readable error code (e.g., "unauthorized")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches two APIErrors by code, so errors.Is(err, ErrAuthorizationPending)
// works on errors decoded from a response body.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

// ============================================================================
// Predefined gateway errors
// ============================================================================

var (
	// ErrInvalidRequest is returned when the request is malformed or missing
	// required parameters.
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrUnauthorized is the single response for every authentication
	// failure. The description deliberately never says whether a credential
	// was missing, malformed, expired or revoked - that detail stays in
	// server-side logs to avoid credential enumeration.
	ErrUnauthorized = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeUnauthorized,
		Description: "authentication required",
	}

	// ErrInsufficientScope is returned when a valid credential lacks the
	// scope an endpoint requires.
	ErrInsufficientScope = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeInsufficientScope,
		Description: "the authenticated principal lacks a required scope",
	}

	// ErrRateLimited is returned when admission control rejects the request.
	ErrRateLimited = &APIError{
		StatusCode:  http.StatusTooManyRequests,
		Code:        ErrorCodeRateLimited,
		Description: "too many requests, please try again later",
	}

	// ErrPaymentRequired is returned when the principal's balance is below
	// the minimum required before an upstream call may be made.
	ErrPaymentRequired = &APIError{
		StatusCode:  http.StatusPaymentRequired,
		Code:        ErrorCodePaymentRequired,
		Description: "insufficient credit balance",
	}

	// ErrUpstreamError is returned when the upstream model provider failed
	// before any bytes were relayed to the caller.
	ErrUpstreamError = &APIError{
		StatusCode:  http.StatusBadGateway,
		Code:        ErrorCodeUpstreamError,
		Description: "the upstream model provider returned an error",
	}

	// ErrAuthorizationPending is returned while a device grant awaits
	// approval (RFC 8628).
	ErrAuthorizationPending = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeAuthorizationPending,
		Description: "the authorization request is still pending",
	}

	// ErrAccessDenied is returned when the resource owner denied the grant.
	ErrAccessDenied = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeAccessDenied,
		Description: "the authorization request was denied",
	}

	// ErrExpiredToken is returned when a device grant expired or was already
	// consumed. Consumed grants are reported identically to expired ones so
	// a stolen device code reveals nothing.
	ErrExpiredToken = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeExpiredToken,
		Description: "the device code is expired",
	}

	// ErrAlreadyResolved is returned when approving a grant that has
	// already been approved or denied.
	ErrAlreadyResolved = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeAlreadyResolved,
		Description: "the authorization request has already been resolved",
	}

	// ErrServerError is returned for unexpected internal failures.
	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)
