package delivery

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned by Submit when the queue is at capacity.
	ErrQueueFull = errors.New("delivery queue full")

	// ErrPipelineClosed is returned by Submit after Shutdown started.
	ErrPipelineClosed = errors.New("delivery pipeline closed")

	// ErrInvalidEvent is returned by Submit for events without a title, route or known severity.
	ErrInvalidEvent = errors.New("invalid alert event")

	// ErrUnknownRoute marks an event whose route key has no endpoint. It is never retried.
	ErrUnknownRoute = errors.New("unknown route")

	ErrTimeout           = errors.New("delivery timeout")
	ErrConnectionRefused = errors.New("delivery connection refused")
	ErrHTTPStatus        = errors.New("delivery unexpected http status")
	ErrRateLimited       = errors.New("delivery rate limited")
)

// ErrorKind classifies a failed delivery attempt.
type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindConnectionRefused ErrorKind = "connection_refused"
	KindHTTPStatus        ErrorKind = "http_status"
	KindRateLimited       ErrorKind = "rate_limited"
)

var kindSentinels = map[ErrorKind]error{
	KindTimeout:           ErrTimeout,
	KindConnectionRefused: ErrConnectionRefused,
	KindHTTPStatus:        ErrHTTPStatus,
	KindRateLimited:       ErrRateLimited,
}

// Error is a classified delivery failure. It matches its kind sentinel with errors.Is.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("delivery %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("delivery %s (status %d)", e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("delivery %s: %v", e.Kind, e.Err)
	default:
		return "delivery " + string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]

	return ok && sentinel == target
}

// BackpressureError reports a full queue; it matches ErrQueueFull.
type BackpressureError struct {
	Depth    int
	Capacity int
}

func (e *BackpressureError) Error() string {
	return fmt.Sprintf("%s: %d/%d entries", ErrQueueFull, e.Depth, e.Capacity)
}

func (e *BackpressureError) Is(target error) bool {
	return target == ErrQueueFull
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	return !errors.Is(err, ErrUnknownRoute)
}
