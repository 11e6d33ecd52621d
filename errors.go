package conclave

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrLLM is a gateway-level failure that is not an HTTP status error
// (marshalling, transport, malformed response body).
type ErrLLM struct {
	Gateway string
	Message string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Gateway, e.Message)
}

// ErrHTTP is a non-200 response from the gateway or the search provider.
// RetryAfter is parsed from the Retry-After header when present.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrQuorum reports that too few participants produced a usable response in a
// round whose outputs the rest of the run depends on. The run terminates
// without synthesis.
var ErrQuorum = errors.New("quorum lost")

// ParseRetryAfter parses a Retry-After header value: either delay-seconds
// ("120") or an HTTP-date. Returns 0 when the value is empty or unparseable.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
