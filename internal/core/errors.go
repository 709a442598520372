package core

import (
	"fmt"

	"gitlab.com/tozd/go/errors"
)

// ConfigurationError reports a request that cannot be resolved into a
// ProfileConfig: an unknown mode or profile, an unknown override key, or an
// override value of the wrong type or outside its allowed set.
//
// It is always returned before any Table is built.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// configErr builds a ConfigurationError with a stack trace attached.
func configErr(field string, value any, format string, args ...any) error {
	return errors.WithStack(&ConfigurationError{
		Field:  field,
		Value:  value,
		Reason: fmt.Sprintf(format, args...),
	})
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
