package dialect

import (
	"errors"
	"fmt"
)

// ErrConfig is matched by every *ConfigError through errors.Is.
var ErrConfig = errors.New("dialect: configuration error")

// ConfigError reports a fatal misconfiguration: an unmapped type, an
// unsupported database product, or a capability requested from a backend
// that cannot provide it. It is never retried.
type ConfigError struct {
	family  string
	feature string
	msg     string
}

// Error returns the error string.
func (e *ConfigError) Error() string {
	switch {
	case e.family != "" && e.feature != "":
		return fmt.Sprintf("dialect: %s: %s: %s", e.family, e.feature, e.msg)
	case e.family != "":
		return fmt.Sprintf("dialect: %s: %s", e.family, e.msg)
	default:
		return fmt.Sprintf("dialect: %s", e.msg)
	}
}

// Is reports whether the target error matches ConfigError.
func (e *ConfigError) Is(err error) bool {
	return err == ErrConfig
}

// Family returns the backend family the error was raised for, if any.
func (e *ConfigError) Family() string {
	return e.family
}

// Feature returns the capability or type that caused the error, if any.
func (e *ConfigError) Feature() string {
	return e.feature
}

// NewConfigError returns a new ConfigError.
func NewConfigError(family, feature, format string, args ...any) *ConfigError {
	return &ConfigError{family: family, feature: feature, msg: fmt.Sprintf(format, args...)}
}

// IsConfigError returns true if the error is a ConfigError.
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConfigError
	return errors.As(err, &e) || errors.Is(err, ErrConfig)
}

func unsupported(family, feature string) *ConfigError {
	return NewConfigError(family, feature, "not supported by this backend")
}
