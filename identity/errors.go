package identity

import "fmt"

// Error is a failure reported by the identity service. Code carries the
// service's structured error code when one was present in the response body;
// Message is the service's human-readable text.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("identity: %s", e.Message)
}
