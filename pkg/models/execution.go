package models

// BrowserConnection describes how the runner attaches to a started browser.
type BrowserConnection struct {
	Port        int    `json:"port"`
	DebugPort   uint16 `json:"debugPort"`
	SessionID   string `json:"sessionId"`
	WSEndpoint  string `json:"wsEndpoint"`
	BrowserType string `json:"browserType"`
}

// ExecutionPayload is the unit sent to a runner. It is never persisted.
type ExecutionPayload struct {
	Script            string            `json:"script"`
	BrowserConnection BrowserConnection `json:"browserConnection"`
	Nodes             []*Node           `json:"nodes"`
	Edges             []*Edge           `json:"edges"`
	ServerID          string            `json:"serverId"`
}
