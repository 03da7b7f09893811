package consultation

import (
	"fmt"
)

// ValidationError rejects malformed lifecycle requests.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
