package league

import (
	"errors"
	"fmt"
)

// ErrConfig matches every *ConfigError via errors.Is.
var ErrConfig = errors.New("invalid league configuration")

// ConfigError reports a malformed or incomplete league instance. It is
// returned before any model is built.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid league configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

func configErrorf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
