package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their koanf key, so a message names the
// same path an operator sets in YAML or through APP_* variables.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "" || name == "-" {
			return strings.ToLower(f.Name)
		}

		return name
	})

	return v
}

// Validate checks c and lists every problem found, one per line.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}

		for _, fe := range fieldErrs {
			problems = append(problems, describe(fe))
		}
	}

	problems = append(problems, c.relations()...)

	if len(problems) == 0 {
		return nil
	}

	return fmt.Errorf("%d config problem(s):\n  %s", len(problems), strings.Join(problems, "\n  "))
}

// relations covers constraints between fields that struct tags cannot
// express.
func (c *Config) relations() []string {
	var out []string

	retry := c.Client.Retry
	if retry.MaxInterval > 0 && retry.MaxInterval < retry.InitialInterval {
		out = append(out, fmt.Sprintf("client.retry.max_interval (%s) is below initial_interval (%s)",
			retry.MaxInterval, retry.InitialInterval))
	}

	if c.Sync.Enabled && c.Sync.Interval > 0 && c.Sync.Timeout > c.Sync.Interval {
		out = append(out, fmt.Sprintf("sync.timeout (%s) exceeds sync.interval (%s)",
			c.Sync.Timeout, c.Sync.Interval))
	}

	return out
}

func describe(fe validator.FieldError) string {
	field := fieldPath(fe.Namespace())

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_if":
		other, value, _ := strings.Cut(fe.Param(), " ")
		return fmt.Sprintf("%s is required when %s is %s", field, strings.ToLower(other), value)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return field + " must be a valid URL"
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, fe.Param())
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", field, strings.ToLower(fe.Param()))
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// fieldPath drops the root type from a namespace such as
// "Config.server.read_timeout".
func fieldPath(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}

	return rest
}
