// Package api is the dashboard backend client: object listing, batch
// requests, uploads and job cancellation.
package api

import (
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
)

// ErrUnauthorized is returned for any 401 from the backend. Callers treat it
// as a forced logout rather than a generic failure.
var ErrUnauthorized = errors.New("unauthorized: session expired or token invalid")

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 4 << 10

// StatusError is a non-2xx response other than 401.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned %s", e.Status)
	}
	return fmt.Sprintf("server returned %s: %s", e.Status, e.Body)
}

// IsUnauthorized reports whether err is, or wraps, ErrUnauthorized.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// CheckResponse returns nil for 2xx responses. Otherwise it drains a bounded
// prefix of the body and returns ErrUnauthorized or a *StatusError. The body
// is not closed.
func CheckResponse(resp *nethttp.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == nethttp.StatusUnauthorized {
		return ErrUnauthorized
	}

	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	}
	status := resp.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", resp.StatusCode, nethttp.StatusText(resp.StatusCode))
	}
	return &StatusError{
		StatusCode: resp.StatusCode,
		Status:     status,
		Body:       strings.TrimSpace(string(body)),
	}
}
