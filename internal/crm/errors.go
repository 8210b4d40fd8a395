// Package crm is the boundary to the remote CRM platform: an authenticated
// paginated search API whose request shape is not stable across accounts.
// The package classifies remote failures into typed error kinds once, at the
// HTTP layer, and adapts shape differences through an ordered variant list.
package crm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrorKind classifies a remote failure for retry and fallback decisions.
type ErrorKind string

const (
	// KindRateLimited means the platform asked us to slow down; the same
	// page may be retried after a delay.
	KindRateLimited ErrorKind = "rate_limited"
	// KindNotFound means the resource or route does not exist for this
	// account; trying the next request-shape variant may help.
	KindNotFound ErrorKind = "not_found"
	// KindTransient covers 5xx and network-level failures.
	KindTransient ErrorKind = "transient"
	// KindFatal covers auth and validation failures that no retry fixes.
	KindFatal ErrorKind = "fatal"
)

// RemoteError is a classified failure from the CRM platform.
type RemoteError struct {
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration // server-hinted delay, zero when absent
	Message    string
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("crm: %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("crm: %s: %s", e.Kind, e.Message)
}

// ClassifyStatus builds a RemoteError from a non-2xx response. The Retry-After
// header is honored both as seconds and as an HTTP date.
func ClassifyStatus(statusCode int, header http.Header, body string) *RemoteError {
	e := &RemoteError{StatusCode: statusCode, Message: truncate(body, 200)}
	switch {
	case statusCode == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
	case statusCode == http.StatusNotFound || statusCode == http.StatusMethodNotAllowed:
		e.Kind = KindNotFound
	case statusCode >= 500:
		e.Kind = KindTransient
	default:
		e.Kind = KindFatal
	}
	return e
}

// TransientError wraps a network-level failure as a transient RemoteError.
func TransientError(err error) *RemoteError {
	return &RemoteError{Kind: KindTransient, Message: err.Error()}
}

// IsRateLimited reports whether err is a rate-limit signal from the platform.
func IsRateLimited(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == KindRateLimited
}

// RetryHint extracts the server-hinted retry delay, zero when absent.
func RetryHint(err error) time.Duration {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.RetryAfter
	}
	return 0
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
