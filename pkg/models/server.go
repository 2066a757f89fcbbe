package models

// Server is a remote runner that executes compiled scripts.
type Server struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	BaseURL string `json:"base_url" validate:"required,url"`
	Token   string `json:"token"`
}
