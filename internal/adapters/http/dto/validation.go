package dto

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrValidation wraps struct validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrBinding wraps JSON or query decoding failures.
	ErrBinding = errors.New("binding failed")
)

// Validator returns the shared validator. Fields are reported under their
// json name, or their form name for query structs, and the notblank tag
// rejects whitespace-only strings.
var Validator = sync.OnceValue(func() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, key := range []string{"json", "form"} {
			if name, _, _ := strings.Cut(f.Tag.Get(key), ","); name != "" {
				if name == "-" {
					return ""
				}

				return name
			}
		}

		return ""
	})

	if err := v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	}); err != nil {
		panic(err)
	}

	return v
})

// Validate checks v's struct tags.
func Validate(v any) error {
	if err := Validator().Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return nil
}

// BindAndValidate decodes the JSON body into v and validates it.
func BindAndValidate(c *gin.Context, v any) error {
	return bind(c.ShouldBindJSON, v)
}

// BindQueryAndValidate decodes query parameters into v and validates it.
func BindQueryAndValidate(c *gin.Context, v any) error {
	return bind(c.ShouldBindQuery, v)
}

func bind(decode func(any) error, v any) error {
	if err := decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBinding, err)
	}

	return Validate(v)
}

// IsValidationError reports whether err carries validator field errors.
func IsValidationError(err error) bool {
	var fieldErrs validator.ValidationErrors
	return errors.As(err, &fieldErrs)
}

// ValidationErrors maps each failing field to a message for the response
// details. It is empty for anything but a validator error.
func ValidationErrors(err error) map[string]string {
	out := make(map[string]string)

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return out
	}

	for _, fe := range fieldErrs {
		out[fe.Field()] = validationMessage(fe)
	}

	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "notblank":
		return "must not be blank"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "max":
		return minMaxMessage(fe.Tag(), fe.Param(), fe.Type().Kind())
	default:
		return "failed validation: " + fe.Tag()
	}
}

// minMaxMessage counts characters for strings and compares values otherwise.
func minMaxMessage(tag, param string, kind reflect.Kind) string {
	bound := "at most"
	if tag == "min" {
		bound = "at least"
	}

	msg := "must be " + bound + " " + param
	if kind == reflect.String {
		msg += " characters"
	}

	return msg
}
