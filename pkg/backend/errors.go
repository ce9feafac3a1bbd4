package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind tags a backend failure with its recovery class.
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindTimeout     ErrorKind = "timeout"
	KindAuth        ErrorKind = "auth"
	KindNotFound    ErrorKind = "not_found"
	KindRateLimited ErrorKind = "rate_limited"
)

// Error is the tagged failure of one backend invocation.
type Error struct {
	Kind    ErrorKind
	Backend string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Backend, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Backend, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a tagged backend error.
func NewError(kind ErrorKind, backend string, err error) *Error {
	return &Error{Kind: kind, Backend: backend, Err: err}
}

// WrapTransport classifies a transport-level error from net/http into a
// tagged backend error. Context deadline and cancellation map to the
// timeout kind so callers see a uniform taxonomy.
func WrapTransport(backend string, err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return NewError(KindTimeout, backend, err)
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return NewError(KindTimeout, backend, err)
		}
		return NewError(KindNetwork, backend, err)
	}
}

// KindOf extracts the error kind, or empty string for untagged errors.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// IsRetryable reports whether retrying the invocation could succeed.
// Auth failures and not-found results are permanent.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout, KindRateLimited:
		return true
	default:
		return false
	}
}
