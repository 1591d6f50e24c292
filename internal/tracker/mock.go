package tracker

import (
	"context"
	"fmt"
	"sync"
)

// MockTracker is a test double for Tracker.
type MockTracker struct {
	mu sync.Mutex

	Issues      []Issue
	ListErr     error
	CommentErr  error
	CreatePRErr error

	Comments   []CommentCall
	CreatedPRs []NewPullRequest
	nextPRNum  int
}

// CommentCall records a call to CreateComment.
type CommentCall struct {
	Number int
	Body   string
}

// NewMockTracker creates a MockTracker with no issues.
func NewMockTracker() *MockTracker {
	return &MockTracker{nextPRNum: 100}
}

func (m *MockTracker) ListOpenIssues(_ context.Context, label string) ([]Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []Issue
	for _, iss := range m.Issues {
		for _, l := range iss.Labels {
			if l == label {
				out = append(out, iss)
				break
			}
		}
	}
	return out, nil
}

func (m *MockTracker) GetIssue(_ context.Context, number int) (*Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Issues {
		if m.Issues[i].Number == number {
			iss := m.Issues[i]
			return &iss, nil
		}
	}
	return nil, fmt.Errorf("issue #%d not found", number)
}

func (m *MockTracker) CreateComment(_ context.Context, number int, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CommentErr != nil {
		return m.CommentErr
	}
	m.Comments = append(m.Comments, CommentCall{Number: number, Body: body})
	return nil
}

func (m *MockTracker) CreatePullRequest(_ context.Context, pr NewPullRequest) (*PullRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreatePRErr != nil {
		return nil, m.CreatePRErr
	}
	m.CreatedPRs = append(m.CreatedPRs, pr)
	m.nextPRNum++
	return &PullRequest{
		Number: m.nextPRNum,
		URL:    fmt.Sprintf("https://github.com/mock/repo/pull/%d", m.nextPRNum),
	}, nil
}
