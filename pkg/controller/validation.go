package controller

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/nimburion/eventsvc/pkg/server/router"
)

// Validator is implemented by DTOs with checks that struct tags cannot
// express. Validate runs after the tag rules pass.
type Validator interface {
	Validate() error
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report JSON names so details match the request body.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// ValidateDTO checks the `validate` tags of dto and then its Validator
// implementation, if any. Failures become a 422 AppError whose details map
// each offending field to the rule it broke.
func ValidateDTO(dto interface{}) error {
	if dto == nil {
		return NewValidationError(ReasonValidationFailed, "request body is required", nil)
	}
	v := reflect.ValueOf(dto)
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return NewValidationError(ReasonValidationFailed, "request body is required", nil)
	}

	if reflect.Indirect(v).Kind() == reflect.Struct {
		if err := structValidator().Struct(dto); err != nil {
			var fieldErrs validator.ValidationErrors
			if !errors.As(err, &fieldErrs) {
				return NewInternalError("validation failed", err)
			}
			details := make(map[string]interface{}, len(fieldErrs))
			for _, fe := range fieldErrs {
				details[fe.Field()] = ruleText(fe)
			}
			return NewValidationError(ReasonValidationFailed, "validation failed", details)
		}
	}

	if custom, ok := dto.(Validator); ok {
		if err := custom.Validate(); err != nil {
			var appErr *AppError
			if errors.As(err, &appErr) {
				return err
			}
			return NewValidationError(ReasonValidationFailed, err.Error(), nil)
		}
	}
	return nil
}

func ruleText(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// BindAndValidate decodes the JSON body into dto and runs ValidateDTO on
// it. Undecodable bodies are a 400.
func BindAndValidate(c router.Context, dto interface{}) error {
	if err := c.Bind(dto); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	return ValidateDTO(dto)
}
