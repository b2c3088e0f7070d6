package market

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport marks network or HTTP failures talking to an upstream.
	ErrTransport = errors.New("market: transport error")
	// ErrRateLimited marks an upstream 429 answer.
	ErrRateLimited = errors.New("market: rate limited")
	// ErrNotResolvable marks a pair or asset that cannot be mapped to a provider id.
	ErrNotResolvable = errors.New("market: symbol not resolvable")
	// ErrEmptyResponse marks a well-formed upstream answer that carried no data.
	ErrEmptyResponse = errors.New("market: empty response")
	// ErrMalformedField marks a value that should parse as a number but does not.
	ErrMalformedField = errors.New("market: malformed field")
)

// HTTPError reports a non-2xx upstream status.
type HTTPError struct {
	Provider string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("%s: http status %d: %s", e.Provider, e.Status, body)
}

// Is lets errors.Is classify status errors against the package sentinels.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return true
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// MalformedFieldError names the field that failed numeric parsing.
func MalformedFieldError(field, value string) error {
	return fmt.Errorf("%w: %s=%q", ErrMalformedField, field, value)
}
