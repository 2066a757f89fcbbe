package models

// SessionStatus mirrors the status reported by the browser host.
type SessionStatus string

const (
	SessionStatusStopped           SessionStatus = "stopped"
	SessionStatusRunning           SessionStatus = "running"
	SessionStatusAutomationRunning SessionStatus = "automationRunning"
	SessionStatusStarting          SessionStatus = "starting"
	SessionStatusError             SessionStatus = "error"
)

// Session is a browser instance owned by the browser host.
// DebugPort is zero when no port is known locally.
type Session struct {
	ID        string        `json:"id"`
	UUID      string        `json:"uuid"`
	Name      string        `json:"name"`
	Status    SessionStatus `json:"status"`
	DebugPort uint16        `json:"debug_port,omitempty"`
}

// IsActive reports whether the host considers the browser to be up.
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusRunning || s.Status == SessionStatusAutomationRunning
}
