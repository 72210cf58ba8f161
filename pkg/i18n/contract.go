// Package i18n carries the localizable error contract and the message
// catalog that renders its reasons per language.
package i18n

import "fmt"

// Params carries dynamic values used to interpolate a localized message template.
type Params map[string]interface{}

// AppError is an error contract suitable for i18n: a stable reason code,
// params, an English fallback and an optional wrapped cause.
type AppError struct {
	Code            string
	FallbackMessage string
	Params          Params
	Details         map[string]interface{}
	HTTPStatus      int
	Cause           error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	label := e.Code
	if e.FallbackMessage != "" {
		label = e.FallbackMessage
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", label, e.Cause)
	}
	return label
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError creates an AppError with a stable message code.
func NewError(code string, params Params, cause error) *AppError {
	return &AppError{
		Code:   code,
		Params: cloneParams(params),
		Cause:  cause,
	}
}

// WithMessage sets a non-localized fallback message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}
	e.FallbackMessage = message
	return e
}

// WithHTTPStatus sets an explicit HTTP status for this error.
func (e *AppError) WithHTTPStatus(status int) *AppError {
	if e == nil {
		return nil
	}
	e.HTTPStatus = status
	return e
}

// WithDetails sets structured error details.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	if e == nil {
		return nil
	}
	e.Details = details
	return e
}

// Translator resolves a message key into a localized text.
type Translator interface {
	T(key string, args ...interface{}) string
}

func cloneParams(params Params) Params {
	if len(params) == 0 {
		return nil
	}
	out := make(Params, len(params))
	for key, value := range params {
		out[key] = value
	}
	return out
}
