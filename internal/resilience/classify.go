package resilience

import (
	"errors"
	"fmt"
	"strings"
)

// Class buckets an agent or provider failure for retry policy.
type Class int

const (
	// ClassUnknown covers anything we cannot classify. Unknown failures
	// are retried: an unclassified transient beats failing fast.
	ClassUnknown Class = iota

	// ClassRateLimited is a 429 / rate-limit rejection. Retryable with an
	// amplified delay.
	ClassRateLimited

	// ClassQuotaExceeded is a quota or billing exhaustion. It looks
	// transient but an organization cannot self-heal it within a backoff
	// window, so it fails fast.
	ClassQuotaExceeded

	// ClassServerError is a 5xx or overloaded upstream. Retryable.
	ClassServerError

	// ClassInvalidArgument is a malformed request. Retrying the same call
	// can never succeed, so it fails fast.
	ClassInvalidArgument
)

// String returns the class name for logging.
func (c Class) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassQuotaExceeded:
		return "quota_exceeded"
	case ClassServerError:
		return "server_error"
	case ClassInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// Retryable reports whether an error of this class is worth retrying.
func (c Class) Retryable() bool {
	switch c {
	case ClassQuotaExceeded, ClassInvalidArgument:
		return false
	default:
		return true
	}
}

// ClassifiedError carries an explicit Class alongside the underlying
// error. Provider clients wrap their failures in one wherever the boundary
// can produce a structured class, so Classify does not have to guess from
// message text.
type ClassifiedError struct {
	Class Class
	Err   error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// NewClassified wraps err with an explicit class.
func NewClassified(class Class, err error) *ClassifiedError {
	return &ClassifiedError{Class: class, Err: err}
}

// ClassifyHTTPStatus maps an HTTP status code to a failure class for
// provider clients that surface raw status codes.
func ClassifyHTTPStatus(status int) Class {
	switch {
	case status == 429:
		return ClassRateLimited
	case status == 402:
		return ClassQuotaExceeded
	case status == 400 || status == 422:
		return ClassInvalidArgument
	case status >= 500:
		return ClassServerError
	default:
		return ClassUnknown
	}
}

// Classify resolves the failure class of err. A ClassifiedError anywhere in
// the chain wins; otherwise the error message is matched by substring. The
// substring path exists only for third-party errors that reach us as
// unstructured text, and precedence matters: an "invalid argument" message
// that also mentions a rate limit must still fail fast.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	// Provider API errors carry their HTTP status.
	var sc interface{ HTTPStatus() int }
	if errors.As(err, &sc) {
		if class := ClassifyHTTPStatus(sc.HTTPStatus()); class != ClassUnknown {
			return class
		}
	}
	return classifyMessage(err.Error())
}

func classifyMessage(msg string) Class {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "invalid") && strings.Contains(m, "argument"):
		return ClassInvalidArgument
	case strings.Contains(m, "quota") || strings.Contains(m, "billing"):
		return ClassQuotaExceeded
	case strings.Contains(m, "429") || strings.Contains(m, "rate limit"):
		return ClassRateLimited
	case containsAny(m, "500", "502", "503", "504", "overloaded", "busy"):
		return ClassServerError
	default:
		return ClassUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
