package tracker

import (
	"context"
	"time"
)

// Tracker is the interface for the issue-tracker backend. Implementations
// handle provider-specific API calls for listing work items, acknowledging
// them, and publishing the resulting pull request.
type Tracker interface {
	// ListOpenIssues returns all open issues carrying the given label,
	// in the tracker's listing order.
	ListOpenIssues(ctx context.Context, label string) ([]Issue, error)

	// GetIssue retrieves a single issue by number.
	GetIssue(ctx context.Context, number int) (*Issue, error)

	// CreateComment posts a comment on an issue.
	CreateComment(ctx context.Context, number int, body string) error

	// CreatePullRequest opens a pull request and returns its metadata.
	CreatePullRequest(ctx context.Context, pr NewPullRequest) (*PullRequest, error)
}

// Issue is an immutable snapshot of a tracker work item, taken at poll time.
type Issue struct {
	Number    int
	Title     string
	Body      string
	Labels    []string
	URL       string
	CreatedAt time.Time
}

// NewPullRequest describes a pull request to be created.
type NewPullRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// PullRequest holds the identifiers of a created pull request. The agent
// only logs and records these; the PR itself lives on the tracker.
type PullRequest struct {
	Number int
	URL    string
}
