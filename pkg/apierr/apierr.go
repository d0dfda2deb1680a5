// Package apierr defines the error returned by the HTTP provider clients for
// non-success responses.
package apierr

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxBody = 512

// Error is a non-success HTTP response from an external API.
type Error struct {
	Service    string
	StatusCode int
	Body       string
	Retry      time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *Error) HTTPStatus() int { return e.StatusCode }

// RetryAfter returns the server's Retry-After hint, or zero.
func (e *Error) RetryAfter() time.Duration { return e.Retry }

// New builds an Error from a response and its already-read body.
func New(service string, resp *http.Response, body []byte) *Error {
	b := strings.TrimSpace(string(body))
	if len(b) > maxBody {
		b = b[:maxBody]
	}
	e := &Error{Service: service, StatusCode: resp.StatusCode, Body: b}
	if resp.Header != nil {
		e.Retry = ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	return e
}

// ParseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
