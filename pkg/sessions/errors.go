package sessions

import (
	"errors"
	"fmt"
	"time"
)

// ErrPortTimeout is returned when a started session's debug port never answers.
var ErrPortTimeout = errors.New("debug port not reachable")

// ErrSessionNotFound is returned when a session id cannot be matched to a
// session the browser host knows about.
var ErrSessionNotFound = errors.New("session not found on host")

type PortTimeoutError struct {
	SessionID string
	Port      uint16
	Attempts  int
	Elapsed   time.Duration
	Err       error
}

func (e *PortTimeoutError) Error() string {
	return fmt.Sprintf("session %s: debug port %d not reachable after %d attempts (%s): %v",
		e.SessionID, e.Port, e.Attempts, e.Elapsed, e.Err)
}

func (e *PortTimeoutError) Unwrap() error {
	return e.Err
}

func (e *PortTimeoutError) Is(target error) bool {
	return target == ErrPortTimeout
}

// SessionError wraps a host failure with the session it concerns.
type SessionError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s session %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func IsPortTimeout(err error) bool {
	return errors.Is(err, ErrPortTimeout)
}

func IsPortPoolExhausted(err error) bool {
	return errors.Is(err, ErrPortPoolExhausted)
}

func IsSessionNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}
