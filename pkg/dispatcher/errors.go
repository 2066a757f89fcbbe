package dispatcher

import (
	"errors"
	"fmt"
)

var (
	// ErrDispatchTimeout is returned when the runner does not answer within the timeout.
	ErrDispatchTimeout = errors.New("workflow dispatch timed out")

	// ErrDispatchRejected is returned for non-2xx runner answers.
	ErrDispatchRejected = errors.New("workflow dispatch rejected")

	// ErrNetwork is returned for transport failures reaching the runner.
	ErrNetwork = errors.New("network error")
)

// RejectedError carries the runner's answer to a refused dispatch.
type RejectedError struct {
	ServerID   string
	StatusCode int
	Message    string
	Body       []byte
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%v: server %s answered %d: %s", ErrDispatchRejected, e.ServerID, e.StatusCode, e.Message)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrDispatchRejected
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrDispatchTimeout)
}

func IsRejected(err error) bool {
	return errors.Is(err, ErrDispatchRejected)
}

func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}

func kind(err error) string {
	switch {
	case IsTimeout(err):
		return "timeout"
	case IsRejected(err):
		return "rejected"
	case IsNetwork(err):
		return "network"
	default:
		return ""
	}
}
