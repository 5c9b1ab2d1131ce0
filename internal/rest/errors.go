package rest

import (
	"errors"
	"fmt"
	"net/http"
)

// CodeSuccess is the application-level success code in every envelope.
const CodeSuccess = 200

var ErrResponseTooLarge = errors.New("response body exceeds 1 MiB")

type HTTPStatusError struct {
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	if e == nil || e.Status == "" {
		return "http request failed"
	}
	return e.Status
}

// APIError is a transport-level success whose envelope reported failure.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error code %d", e.Code)
	}
	return fmt.Sprintf("api error code %d: %s", e.Code, e.Message)
}

// IsUnauthorized reports whether err means the access token was rejected.
func IsUnauthorized(err error) bool {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusUnauthorized
	}
	return false
}
