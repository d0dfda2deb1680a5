package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNoMatch is the confirmed-absence outcome: the provider answered and had
// nothing for the query. It is cached and never retried.
var ErrNoMatch = eris.New("no match")

// ProviderError is a failed provider call. Transient errors are retried;
// neither kind is ever cached.
type ProviderError struct {
	Provider   string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: provider error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// RateLimitedError signals that a provider asked us to back off.
type RateLimitedError struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: rate limited (retry after %s): %v", e.Provider, e.RetryAfter, e.Err)
}

func (e *RateLimitedError) Unwrap() error {
	return e.Err
}

// CooldownError is returned without touching the network while a provider
// is inside its back-off window.
type CooldownError struct {
	Provider  string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: cooling down for %s", e.Provider, e.Remaining.Round(time.Millisecond))
}

// StatusCoder is implemented by HTTP client errors that carry a status code.
type StatusCoder interface {
	HTTPStatus() int
}

// RetryAfterer is implemented by HTTP client errors that carry a Retry-After hint.
type RetryAfterer interface {
	RetryAfter() time.Duration
}

// Classify maps a raw adapter error onto the provider outcome taxonomy.
// ErrNoMatch and already-classified errors pass through unchanged.
func Classify(provider string, err error) error {
	if err == nil || IsNoMatch(err) {
		return err
	}
	var pe *ProviderError
	var rl *RateLimitedError
	var ce *CooldownError
	if errors.As(err, &pe) || errors.As(err, &rl) || errors.As(err, &ce) {
		return err
	}

	status := 0
	var sc StatusCoder
	if errors.As(err, &sc) {
		status = sc.HTTPStatus()
	}
	if status == http.StatusTooManyRequests {
		var after time.Duration
		var ra RetryAfterer
		if errors.As(err, &ra) {
			after = ra.RetryAfter()
		}
		return &RateLimitedError{Provider: provider, RetryAfter: after, Err: err}
	}
	if status == http.StatusNotFound {
		return ErrNoMatch
	}
	return &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Transient:  IsTransientHTTPStatus(status) || IsTransient(err),
		Err:        err,
	}
}

// IsNoMatch reports whether err is a confirmed absence.
func IsNoMatch(err error) bool {
	return errors.Is(err, ErrNoMatch)
}

// AsRateLimited returns the RateLimitedError in err's chain, if any.
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// IsCooldown reports whether err came from a provider back-off window.
func IsCooldown(err error) bool {
	var ce *CooldownError
	return errors.As(err, &ce)
}

// IsRetryable reports whether a provider call should be attempted again.
// Only transient ProviderErrors qualify; no-match, rate limits, and
// cooldowns are handled by the cache and back-off layers instead.
func IsRetryable(err error) bool {
	if err == nil || IsNoMatch(err) || IsCooldown(err) {
		return false
	}
	if _, ok := AsRateLimited(err); ok {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return IsTransient(err)
}

// IsTransient returns true for network-level failures that are safe to retry
// (timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"unexpected eof",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
