package agent

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnreachable means a device answered none of the queries sent to it.
	ErrUnreachable = errors.New("device unreachable")
	// ErrUnauthenticated means there is no delivery credential or the aggregator rejected it.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrDeliveryFailed means the aggregator did not acknowledge a request.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// StatusError is returned when the aggregator answers with an unexpected status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

// Unwrap classifies the status so callers can match with errors.Is.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthenticated
	}
	return ErrDeliveryFailed
}
