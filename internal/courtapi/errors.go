package courtapi

import (
	"errors"
	"fmt"
)

// Kind classifies a court API failure so callers can choose a retry policy.
type Kind int

const (
	// KindConfiguration covers unsupported API types, unsupported query
	// types and incomplete court setup. Never retried.
	KindConfiguration Kind = iota + 1
	// KindAuthentication covers rejected credentials and unusable token
	// responses.
	KindAuthentication
	// KindTransient covers transport failures and non-success statuses from
	// data endpoints.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthentication:
		return "authentication"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every Client operation.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Status != 0 {
		msg += fmt.Sprintf(": HTTP %d", e.Status)
		if e.Body != "" {
			msg += ": " + truncate(e.Body, 500)
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the call could succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient
}

// KindOf extracts the Kind of err, or zero when err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

func configError(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Err: fmt.Errorf(format, args...)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
