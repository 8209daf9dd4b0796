package ollama

import "time"

// GenerateRequest represents a request to the Ollama generate API
type GenerateRequest struct {
	Model   string   `json:"model"`
	System  string   `json:"system,omitempty"`
	Prompt  string   `json:"prompt"`
	Images  []string `json:"images,omitempty"` // base64 encoded
	Stream  bool     `json:"stream"`
	Format  string   `json:"format,omitempty"` // "json" for structured output
	Options *Options `json:"options,omitempty"`
}

// Options are the model parameters passed alongside a generate request
type Options struct {
	Temperature float64 `json:"temperature"`
	Seed        int     `json:"seed,omitempty"`
}

// GenerateResponse represents a response from the Ollama generate API
type GenerateResponse struct {
	Model         string    `json:"model"`
	Response      string    `json:"response"`
	Done          bool      `json:"done"`
	CreatedAt     time.Time `json:"created_at"`
	TotalDuration int64     `json:"total_duration,omitempty"` // nanoseconds
}

// Model represents an Ollama model
type Model struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
	Details    struct {
		Format        string   `json:"format"`
		Family        string   `json:"family"`
		Families      []string `json:"families"`
		ParameterSize string   `json:"parameter_size"`
	} `json:"details"`
}

// ListModelsResponse represents a response from the list models API
type ListModelsResponse struct {
	Models []Model `json:"models"`
}

// PullRequest represents a request to pull/download a model
type PullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

// PullResponse is one line of the streamed pull progress
type PullResponse struct {
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Percent returns download progress for the current layer, or -1 when the
// line carries no sizes.
func (p PullResponse) Percent() int {
	if p.Total <= 0 {
		return -1
	}
	return int(p.Completed * 100 / p.Total)
}

// ErrorResponse represents an error response from Ollama
type ErrorResponse struct {
	Error string `json:"error"`
}
