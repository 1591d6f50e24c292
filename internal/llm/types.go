package llm

import "context"

// GenerateRequest is a single synchronous generation call.
type GenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Options map[string]any `json:"options,omitempty"`
	Stream  bool           `json:"stream"`
}

// GenerateResponse carries the completion text.
type GenerateResponse struct {
	Response string `json:"response"`
}

// Client abstracts the model endpoint for testability.
type Client interface {
	// Generate sends a prompt and waits for the full completion.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}
