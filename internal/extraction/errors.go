package extraction

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrInvalidReceipt means the service responded but the result does
	// not satisfy the receipt shape. Never retried.
	ErrInvalidReceipt = errors.New("invalid receipt")

	// ErrProviderAuth means the extraction service rejected our
	// credentials. Never retried.
	ErrProviderAuth = errors.New("extraction service rejected credentials")

	// ErrUnavailable means every attempt failed transiently. The user
	// can retry later.
	ErrUnavailable = errors.New("receipt processing failed, please retry later")
)

// transientError marks a failure worth another attempt: network
// errors, timeouts, 429 and 5xx responses.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
