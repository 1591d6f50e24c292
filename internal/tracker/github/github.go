package github

import (
	"context"
	"fmt"
	"time"

	github_ratelimit "github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"golang.org/x/oauth2"

	"github.com/patchpilot/patchpilot/internal/tracker"
)

// pageSize is the fixed page size for issue listing.
const pageSize = 50

// Backend implements tracker.Tracker for GitHub.
type Backend struct {
	client     *gh.Client
	owner      string
	repo       string
	apiTimeout time.Duration
	prTimeout  time.Duration
}

// Option configures a Backend.
type Option func(*Backend)

// WithTimeouts sets the per-call deadlines for tracker calls and PR creation.
func WithTimeouts(api, pr time.Duration) Option {
	return func(b *Backend) {
		b.apiTimeout = api
		b.prTimeout = pr
	}
}

// NewBackend creates a GitHub backend for the given owner/repo.
// Uses go-github-ratelimit middleware for automatic rate limit handling.
func NewBackend(owner, repo, token string, opts ...Option) *Backend {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	base := oauth2.NewClient(context.Background(), src)
	rateLimiter := github_ratelimit.NewClient(base.Transport)
	b := &Backend{
		client:     gh.NewClient(rateLimiter),
		owner:      owner,
		repo:       repo,
		apiTimeout: 30 * time.Second,
		prTimeout:  3 * time.Minute,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ListOpenIssues returns all open issues carrying the given label, paginated.
// Pull requests are excluded; the GitHub issues API returns both.
func (b *Backend) ListOpenIssues(ctx context.Context, label string) ([]tracker.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, b.apiTimeout)
	defer cancel()

	opts := &gh.IssueListByRepoOptions{
		State:       "open",
		Labels:      []string{label},
		ListOptions: gh.ListOptions{PerPage: pageSize},
	}

	var issues []tracker.Issue
	for {
		page, resp, err := b.client.Issues.ListByRepo(ctx, b.owner, b.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing issues: %w", err)
		}
		for _, iss := range page {
			if iss.IsPullRequest() {
				continue
			}
			issues = append(issues, mapIssue(iss))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	return issues, nil
}

// GetIssue retrieves a single issue by number.
func (b *Backend) GetIssue(ctx context.Context, number int) (*tracker.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, b.apiTimeout)
	defer cancel()

	iss, _, err := b.client.Issues.Get(ctx, b.owner, b.repo, number)
	if err != nil {
		return nil, fmt.Errorf("getting issue #%d: %w", number, err)
	}
	mapped := mapIssue(iss)
	return &mapped, nil
}

// CreateComment posts a comment on an issue.
func (b *Backend) CreateComment(ctx context.Context, number int, body string) error {
	ctx, cancel := context.WithTimeout(ctx, b.apiTimeout)
	defer cancel()

	_, _, err := b.client.Issues.CreateComment(ctx, b.owner, b.repo, number, &gh.IssueComment{
		Body: gh.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("commenting on issue #%d: %w", number, err)
	}
	return nil
}

// CreatePullRequest opens a pull request from head into base.
func (b *Backend) CreatePullRequest(ctx context.Context, pr tracker.NewPullRequest) (*tracker.PullRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, b.prTimeout)
	defer cancel()

	created, _, err := b.client.PullRequests.Create(ctx, b.owner, b.repo, &gh.NewPullRequest{
		Title: gh.Ptr(pr.Title),
		Body:  gh.Ptr(pr.Body),
		Head:  gh.Ptr(pr.Head),
		Base:  gh.Ptr(pr.Base),
	})
	if err != nil {
		return nil, fmt.Errorf("creating pull request: %w", err)
	}
	return &tracker.PullRequest{
		Number: created.GetNumber(),
		URL:    created.GetHTMLURL(),
	}, nil
}

func mapIssue(iss *gh.Issue) tracker.Issue {
	labels := make([]string, 0, len(iss.Labels))
	for _, l := range iss.Labels {
		labels = append(labels, l.GetName())
	}
	return tracker.Issue{
		Number:    iss.GetNumber(),
		Title:     iss.GetTitle(),
		Body:      iss.GetBody(),
		Labels:    labels,
		URL:       iss.GetHTMLURL(),
		CreatedAt: iss.GetCreatedAt().Time,
	}
}
