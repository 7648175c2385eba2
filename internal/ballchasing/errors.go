package ballchasing

import (
	"errors"
	"fmt"
	"net/http"
)

// RemoteError is a failed request to the catalog: a non-2xx response, or a
// transport failure (StatusCode 0).
type RemoteError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a rate-limit, server-side or transport
// failure that a later pass may succeed on.
func IsRetryable(err error) bool {
	var re *RemoteError
	if !errors.As(err, &re) {
		return false
	}
	switch {
	case re.StatusCode == 0:
		return true
	case re.StatusCode == http.StatusTooManyRequests:
		return true
	case re.StatusCode >= 500:
		return true
	}
	return false
}

// IsNotFound reports whether err is a 404 from the catalog.
func IsNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == http.StatusNotFound
}
