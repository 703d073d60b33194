package genai

import "fmt"

// ConfigurationError reports an unusable client configuration, such as an
// unknown provider name or a fallback equal to the primary.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("genai configuration: %s: %s", e.Field, e.Reason)
}
