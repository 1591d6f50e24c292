package llm

import (
	"context"
	"sync"
)

// MockClient is a test double for Client.
type MockClient struct {
	mu            sync.Mutex
	DefaultResult string
	GenerateErr   error
	History       []GenerateRequest
}

// NewMockClient creates a MockClient with a canned completion.
func NewMockClient() *MockClient {
	return &MockClient{DefaultResult: "Mock model response"}
}

func (m *MockClient) Generate(_ context.Context, req GenerateRequest) (*GenerateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GenerateErr != nil {
		return nil, m.GenerateErr
	}
	m.History = append(m.History, req)
	return &GenerateResponse{Response: m.DefaultResult}, nil
}

// Prompts returns the prompts of all recorded calls.
func (m *MockClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.History))
	for _, r := range m.History {
		out = append(out, r.Prompt)
	}
	return out
}
