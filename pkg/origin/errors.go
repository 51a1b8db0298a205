package origin

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors returned by origin clients. Every *Error matches exactly one of them.
var (
	// ErrTimeout is returned when the fetch exceeded its deadline.
	ErrTimeout = errors.New("origin timeout")

	// ErrConnection is returned for network failures and 5xx answers.
	ErrConnection = errors.New("origin connection error")

	// ErrAuth is returned when the origin rejected the credentials.
	ErrAuth = errors.New("origin auth error")

	// ErrNotFound is returned when the origin has no object for the key.
	ErrNotFound = errors.New("origin object not found")
)

// ErrorClass represents a classification of origin failures.
type ErrorClass string

const (
	// ErrorClassTimeout represents deadline exceeded.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassConnection represents network errors and origin 5xx answers.
	ErrorClassConnection ErrorClass = "connection"

	// ErrorClassAuth represents 401/403 and signature errors.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassNotFound represents a missing object.
	ErrorClassNotFound ErrorClass = "not_found"
)

// Error is an origin failure with additional context.
type Error struct {
	Class      ErrorClass
	Key        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("origin %s error (status %d) for %s", e.Class, e.StatusCode, e.Key)
	}
	if e.Err != nil {
		return fmt.Sprintf("origin %s error for %s: %v", e.Class, e.Key, e.Err)
	}
	return fmt.Sprintf("origin %s error for %s", e.Class, e.Key)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error class.
func (e *Error) Is(target error) bool {
	return target == e.Class.sentinel()
}

func (c ErrorClass) sentinel() error {
	switch c {
	case ErrorClassTimeout:
		return ErrTimeout
	case ErrorClassConnection:
		return ErrConnection
	case ErrorClassAuth:
		return ErrAuth
	case ErrorClassNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// Retryable reports whether err is transient. Only timeouts and connection
// errors are worth another attempt; auth and not-found answers are final.
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnection)
}

// ClassOf returns the class of an origin error, or "" for anything else.
func ClassOf(err error) ErrorClass {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Class
	}
	return ""
}

// classifyTransportError classifies errors that happen before an answer is received.
func classifyTransportError(ctx context.Context, err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}
	return ErrorClassConnection
}

// classifyStatus maps an HTTP status code to an error class. Statuses that
// are neither auth nor not-found are treated as connection problems.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 401 || status == 403:
		return ErrorClassAuth
	case status == 404 || status == 410:
		return ErrorClassNotFound
	case status == 408 || status == 504:
		return ErrorClassTimeout
	default:
		return ErrorClassConnection
	}
}

func newError(class ErrorClass, key string, status int, err error) *Error {
	return &Error{Class: class, Key: key, StatusCode: status, Err: err}
}
