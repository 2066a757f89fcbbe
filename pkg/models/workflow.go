// Package models defines the core domain models for browser workflow automation.
package models

import "time"

// Workflow is the user-authored graph of browser actions, as stored by the editor.
type Workflow struct {
	ID        string    `json:"id"         yaml:"id"`
	Name      string    `json:"name"       yaml:"name"       validate:"required"`
	Nodes     []*Node   `json:"nodes"      yaml:"nodes"      validate:"dive"`
	Edges     []*Edge   `json:"edges"      yaml:"edges"      validate:"dive"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}
