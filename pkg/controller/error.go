package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/nimburion/eventsvc/pkg/i18n"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
)

// Reason codes double as message catalog keys.
const (
	ReasonUserNotFound       = "user_not_found"
	ReasonUserExists         = "user_exists"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonNotAuthenticated   = "not_authenticated"
	ReasonEventNotFound      = "event_not_found"
	ReasonInvalidDatetime    = "invalid_datetime"
	ReasonDatetimeInPast     = "datetime_in_past"
	ReasonEndBeforeStart     = "end_before_start"
	ReasonTooManyRequests    = "too_many_requests"
	ReasonValidationFailed   = "validation_failed"
	ReasonServiceError       = "service_error"
)

// AppError is the single application error contract shared across layers.
type AppError = i18n.AppError

// ErrorResponse represents the consistent error response format.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Code      string                 `json:"code,omitempty"`
	Message   string                 `json:"message,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// MapError maps application errors to HTTP responses. Messages are rendered
// through the translator stored in ctx, falling back to the English text
// carried by the error.
func MapError(ctx context.Context, err error) (int, ErrorResponse) {
	requestID := logger.RequestIDFromContext(ctx)

	var appErr *AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, ErrorResponse{
			Error:     "internal_server_error",
			Code:      ReasonServiceError,
			Message:   translateMessageWithFallback(ctx, ReasonServiceError, nil, "Internal service error"),
			RequestID: requestID,
		}
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = inferStatusFromCode(appErr.Code)
	}

	message := translateMessageWithFallback(ctx, appErr.Code, appErr.Params, appErr.FallbackMessage)
	if message == "" {
		message = "an unexpected error occurred"
	}

	return status, ErrorResponse{
		Error:     errorCategory(status),
		Code:      appErr.Code,
		Message:   message,
		RequestID: requestID,
		Details:   appErr.Details,
	}
}

// NewValidationError reports a request that is well formed but semantically
// invalid.
func NewValidationError(reason, message string, details map[string]interface{}) *AppError {
	return i18n.NewError(reason, nil, nil).
		WithMessage(message).
		WithHTTPStatus(http.StatusUnprocessableEntity).
		WithDetails(details)
}

// NewBadRequestError reports a request that cannot be decoded.
func NewBadRequestError(message string, cause error) *AppError {
	return i18n.NewError(ReasonValidationFailed, nil, cause).
		WithMessage(message).
		WithHTTPStatus(http.StatusBadRequest)
}

func NewNotFoundError(reason, message string) *AppError {
	return i18n.NewError(reason, nil, nil).
		WithMessage(message).
		WithHTTPStatus(http.StatusNotFound)
}

func NewConflictError(reason, message string) *AppError {
	return i18n.NewError(reason, nil, nil).
		WithMessage(message).
		WithHTTPStatus(http.StatusConflict)
}

func NewUnauthorizedError(reason, message string) *AppError {
	return i18n.NewError(reason, nil, nil).
		WithMessage(message).
		WithHTTPStatus(http.StatusUnauthorized)
}

// NewTooManyRequestsError reports a tripped rate limiter.
func NewTooManyRequestsError(message string) *AppError {
	return i18n.NewError(ReasonTooManyRequests, nil, nil).
		WithMessage(message).
		WithHTTPStatus(http.StatusTooManyRequests)
}

// NewInternalError creates a new internal error with optional cause.
func NewInternalError(message string, cause error) *AppError {
	return i18n.NewError(ReasonServiceError, nil, cause).
		WithMessage(message).
		WithHTTPStatus(http.StatusInternalServerError)
}

func translateMessageWithFallback(ctx context.Context, code string, params i18n.Params, fallback string) string {
	if code == "" {
		return fallback
	}
	translated := i18n.TranslatorFromContext(ctx).T(code, params)
	if translated == "" || (translated == code && fallback != "") {
		return fallback
	}
	return translated
}

func errorCategory(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return "validation_error"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	default:
		if status >= 500 {
			return "internal_server_error"
		}
		return "application_error"
	}
}

func inferStatusFromCode(code string) int {
	switch code {
	case ReasonUserNotFound, ReasonEventNotFound:
		return http.StatusNotFound
	case ReasonUserExists:
		return http.StatusConflict
	case ReasonInvalidCredentials, ReasonNotAuthenticated:
		return http.StatusUnauthorized
	case ReasonInvalidDatetime, ReasonDatetimeInPast, ReasonEndBeforeStart, ReasonValidationFailed:
		return http.StatusUnprocessableEntity
	case ReasonTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
