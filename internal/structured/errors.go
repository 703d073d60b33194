package structured

import "fmt"

// SchemaValidationError is returned when no attempt produced output that
// parses and validates against the schema.
type SchemaValidationError struct {
	Attempts int
	Err      error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("structured output invalid after %d attempts: %v", e.Attempts, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }
