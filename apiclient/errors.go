package apiclient

import (
	"fmt"
	"net/http"
)

// TransportError is a non-2xx response promoted to an error by the JSON
// helpers. The raw Get/Post/Put methods never return it.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsUnauthorized reports a 401 from the backend
func (e *TransportError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}
