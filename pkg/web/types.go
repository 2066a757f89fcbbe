package web

import (
	"time"

	"github.com/dukex/browserflow/pkg/models"
)

// GraphRequest is the body of the compile and validate endpoints.
type GraphRequest struct {
	Nodes []*models.Node `json:"nodes" validate:"required,min=1,dive"`
	Edges []*models.Edge `json:"edges" validate:"dive"`
}

type CompileResponse struct {
	Script string   `json:"script"`
	Order  []string `json:"order"`
}

type ValidateResponse struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

// StartSessionRequest is optional; the session id doubles as the host uuid.
type StartSessionRequest struct {
	UUID string `json:"uuid" validate:"omitempty,min=1"`
}

type StartSessionResponse struct {
	SessionID string `json:"session_id"`
	Port      uint16 `json:"port"`
	Reused    bool   `json:"reused"`
}

type SessionsResponse struct {
	Sessions  []models.Session `json:"sessions"`
	FetchedAt time.Time        `json:"fetched_at"`
}

type ExecuteAcceptedResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}
