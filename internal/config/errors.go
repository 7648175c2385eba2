package config

import "fmt"

// ConfigurationError reports a missing or invalid setting. It is raised
// before any remote work begins.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}
