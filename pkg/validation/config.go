package validation

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ConfigValidator chains checks over a configuration document and keeps
// every failure, each prefixed with the document and field name.
type ConfigValidator struct {
	doc    string
	result *multierror.Error
}

// NewConfigValidator starts a validator for the document doc, e.g. "config"
// or "rules".
func NewConfigValidator(doc string) *ConfigValidator {
	return &ConfigValidator{doc: doc}
}

func (cv *ConfigValidator) add(field string, err error) *ConfigValidator {
	cv.result = multierror.Append(cv.result, fmt.Errorf("%s.%s: %w", cv.doc, field, err))
	return cv
}

// Required fails when value is empty.
func (cv *ConfigValidator) Required(field, value string) *ConfigValidator {
	if value == "" {
		return cv.add(field, fmt.Errorf("required field is empty"))
	}
	return cv
}

// Check fails with the formatted message unless ok.
func (cv *ConfigValidator) Check(field string, ok bool, format string, args ...any) *ConfigValidator {
	if !ok {
		return cv.add(field, fmt.Errorf(format, args...))
	}
	return cv
}

// Custom records the error returned by fn, if any.
func (cv *ConfigValidator) Custom(field string, fn func() error) *ConfigValidator {
	if err := fn(); err != nil {
		return cv.add(field, err)
	}
	return cv
}

// When runs validations only if condition holds.
func (cv *ConfigValidator) When(condition bool, validations func(*ConfigValidator)) *ConfigValidator {
	if condition {
		validations(cv)
	}
	return cv
}

// Len returns the number of failures so far.
func (cv *ConfigValidator) Len() int {
	if cv.result == nil {
		return 0
	}
	return cv.result.Len()
}

// Validate returns nil, the single failure, or all failures combined.
func (cv *ConfigValidator) Validate() error {
	switch cv.Len() {
	case 0:
		return nil
	case 1:
		return cv.result.Errors[0]
	default:
		return cv.result.ErrorOrNil()
	}
}

// DefaultOr returns value unless it is the zero value.
func DefaultOr[T comparable](value, fallback T) T {
	var zero T
	if value == zero {
		return fallback
	}
	return value
}
