package types

import "fmt"

// ValidationError reports invalid input to a billing operation, such as a
// choose-amount payment larger than the remaining bill.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tablebill: validation failed for %s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError with a formatted message.
func Invalid(field, format string, args ...any) ValidationError {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
