package hostapi

import (
	"errors"
	"fmt"
)

var (
	// ErrHostPortClosed indicates the relay reached no host instance on the selected port.
	ErrHostPortClosed = errors.New("browser host port is closed")

	// ErrHostTimeout indicates the request was aborted before the host answered.
	ErrHostTimeout = errors.New("browser host request timed out")

	// ErrHostUnavailable indicates a transport failure talking to the relay.
	ErrHostUnavailable = errors.New("browser host unavailable")

	// ErrHostRejected indicates a non-2xx answer that is not a closed port.
	ErrHostRejected = errors.New("browser host rejected request")
)

// HostError carries the structured error body returned by the relay.
type HostError struct {
	Op         string
	StatusCode int
	Message    string
	Details    string
	Port       int
	PortStatus string
	Err        error
}

func (e *HostError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Err)

	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}

	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Details != "" {
		msg += " - " + e.Details
	}

	return msg
}

func (e *HostError) Unwrap() error {
	return e.Err
}

// IsPortClosed reports whether err means the host instance port is closed.
func IsPortClosed(err error) bool {
	return errors.Is(err, ErrHostPortClosed)
}

// IsTimeout reports whether err is a host request timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrHostTimeout)
}

// IsTransient reports whether err is any host failure the caller may retry later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrHostPortClosed) ||
		errors.Is(err, ErrHostTimeout) ||
		errors.Is(err, ErrHostUnavailable) ||
		errors.Is(err, ErrHostRejected)
}
