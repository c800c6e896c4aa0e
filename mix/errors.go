package mix

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigurationError reports a layer configuration that cannot be built, or an
// operation the configured combinator does not support.
type ConfigurationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// ShapeMismatchError reports a tensor whose trailing dimensions do not match
// what the layer was built for.
type ShapeMismatchError struct {
	Got  []int
	Want []int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape %v does not end in %v", e.Got, e.Want)
}

func configError(field string, value interface{}, format string, args ...interface{}) error {
	return errors.WithStack(&ConfigurationError{
		Field:  field,
		Value:  value,
		Reason: fmt.Sprintf(format, args...),
	})
}
