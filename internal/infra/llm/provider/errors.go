package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/verdict/internal/core/domain"
)

var (
	// ErrNotConfigured is returned when a chain has no usable backends.
	ErrNotConfigured = errors.New("no backends configured")

	// ErrInvalidReply is returned when a backend answers with something unparseable.
	ErrInvalidReply = errors.New("invalid model response")

	// ErrMissingCredential is returned by clients built without an API key.
	ErrMissingCredential = errors.New("missing API key")
)

// StatusError is a non-success answer from an HTTP backend.
type StatusError struct {
	Code       int
	Status     string
	Message    string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("http %d %s: %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// RateLimitedError means the backend is cooling down. Wait is how long
// until it may be tried again.
type RateLimitedError struct {
	Backend    domain.BackendIdentity
	Wait       time.Duration
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s rate limited, retry in %s", e.Backend, e.Wait.Round(100*time.Millisecond))
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// UnavailableError means the model does not exist or is not authorized for
// this credential. It is permanent for the adapter.
type UnavailableError struct {
	Backend domain.BackendIdentity
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Backend, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// TransientError is any other failure. It never touches the cooldown registry.
type TransientError struct {
	Backend domain.BackendIdentity
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Backend, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Classify maps a raw client error onto the taxonomy. Errors that are
// already classified are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var (
		rl *RateLimitedError
		un *UnavailableError
		tr *TransientError
	)
	if errors.As(err, &rl) || errors.As(err, &un) || errors.As(err, &tr) {
		return err
	}
	if errors.Is(err, ErrInvalidReply) {
		return &TransientError{Err: err}
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusTooManyRequests || se.Status == "RESOURCE_EXHAUSTED":
			return &RateLimitedError{RetryAfter: se.RetryAfter, Err: err}
		case se.Code == http.StatusNotFound || se.Code == http.StatusForbidden || se.Code == http.StatusUnauthorized,
			se.Status == "NOT_FOUND" || se.Status == "PERMISSION_DENIED" || se.Status == "UNAUTHENTICATED":
			return &UnavailableError{Err: err}
		}
		switch {
		case DetectThrottlePattern(se.Message):
			return &RateLimitedError{RetryAfter: se.RetryAfter, Err: err}
		case DetectUnavailablePattern(se.Message):
			return &UnavailableError{Err: err}
		}
		return &TransientError{Err: err}
	}

	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
			switch st.Code() {
			case codes.ResourceExhausted:
				return &RateLimitedError{RetryAfter: retryDelay(st), Err: err}
			case codes.NotFound, codes.PermissionDenied, codes.Unauthenticated:
				return &UnavailableError{Err: err}
			}
			if DetectUnavailablePattern(st.Message()) {
				return &UnavailableError{Err: err}
			}
			return &TransientError{Err: err}
		}
	}

	msg := err.Error()
	switch {
	case DetectThrottlePattern(msg):
		return &RateLimitedError{Err: err}
	case DetectUnavailablePattern(msg):
		return &UnavailableError{Err: err}
	}
	return &TransientError{Err: err}
}

func retryDelay(st *status.Status) time.Duration {
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.RetryInfo); ok && info.GetRetryDelay() != nil {
			return info.GetRetryDelay().AsDuration()
		}
	}
	return 0
}
