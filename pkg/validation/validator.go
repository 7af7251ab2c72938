package validation

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// MaxServiceNameLength bounds service and subnet names.
	MaxServiceNameLength = 253

	// same character set docker-compose accepts for service names
	serviceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("servicename", func(fl validator.FieldLevel) bool {
		return ValidateServiceName(fl.Field().String()) == nil
	})
}

// Struct validates struct tags and reports the first failure in a readable form.
func Struct(v any) error {
	if v == nil {
		return errors.New("value cannot be nil")
	}
	if err := validate.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ValidateServiceName checks a service or honeypot name.
func ValidateServiceName(name string) error {
	if name == "" {
		return errors.New("service name cannot be empty")
	}
	if len(name) > MaxServiceNameLength {
		return fmt.Errorf("service name '%s' exceeds maximum length of %d characters", name, MaxServiceNameLength)
	}
	if !serviceNamePattern.MatchString(name) {
		return fmt.Errorf("service name '%s' contains invalid characters", name)
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	for _, e := range validationErrs {
		field := e.Namespace()
		param := e.Param()

		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "gt":
			return fmt.Errorf("%s: must be greater than %s", field, param)
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, param)
		case "servicename":
			return fmt.Errorf("%s: invalid service name %q", field, e.Value())
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}

	return err
}
