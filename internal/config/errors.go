package config

import "fmt"

// ConfigurationError reports a missing mandatory setting or a malformed
// entry. It aborts startup and is never retried.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Key, e.Reason)
}

// missingKey builds the error for a mandatory setting absent from every
// source.
func missingKey(key, hint string) *ConfigurationError {
	return &ConfigurationError{
		Key:    key,
		Reason: "required but not set (" + hint + ")",
	}
}

// invalidKey builds the error for a malformed setting value.
func invalidKey(key, value, reason string) *ConfigurationError {
	return &ConfigurationError{
		Key:    key,
		Reason: fmt.Sprintf("invalid value %q: %s", value, reason),
	}
}
