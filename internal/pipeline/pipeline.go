// Package pipeline sequences one issue from acknowledgment to opened pull
// request. Every fatal step error is caught here, logged with the issue
// number, and converted into "attempt failed, not marked processed"; the
// poll loop never sees a panic or a crash from a single bad issue.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/patchpilot/patchpilot/internal/config"
	"github.com/patchpilot/patchpilot/internal/diff"
	"github.com/patchpilot/patchpilot/internal/gitx"
	"github.com/patchpilot/patchpilot/internal/llm"
	"github.com/patchpilot/patchpilot/internal/preflight"
	"github.com/patchpilot/patchpilot/internal/promptctx"
	"github.com/patchpilot/patchpilot/internal/state"
	"github.com/patchpilot/patchpilot/internal/tracker"
)

// Step identifies how far an attempt progressed.
type Step string

const (
	StepAcked       Step = "acked"
	StepBaseReset   Step = "base_reset"
	StepBranched    Step = "branched"
	StepPrompted    Step = "prompted"
	StepCompleted   Step = "completion_received"
	StepDiffed      Step = "diff_extracted"
	StepApplied     Step = "patch_applied"
	StepPreflighted Step = "preflight_run"
	StepCommitted   Step = "committed"
	StepPushed      Step = "pushed"
	StepPROpened    Step = "pr_opened"
	StepDone        Step = "done"
)

// GitOps is the slice of the git lifecycle the pipeline drives.
// *gitx.Worktree implements it; tests substitute a fake.
type GitOps interface {
	ResetToCleanBase(ctx context.Context, remote, branch string) error
	CreateTopicBranch(ctx context.Context, name string) error
	ApplyPatch(ctx context.Context, d string, issueNumber int) error
	CommitAll(ctx context.Context, message string) error
	Publish(ctx context.Context, token, owner, repo, branch string) error
	HeadSHA(ctx context.Context) (string, error)
	Dir() string
}

// PreflightRunner runs the target repo's own validation tooling.
type PreflightRunner interface {
	Run(ctx context.Context, dir string) preflight.Report
}

// Result describes a completed (or failed) attempt.
type Result struct {
	Step         Step
	Branch       string
	ChangedFiles []string
	PRNumber     int
	PRURL        string
	CommitSHA    string
	// Warnings records non-fatal failures (ack comment, report write).
	Warnings []string
}

// Pipeline processes single issues end to end.
type Pipeline struct {
	cfg       *config.Config
	trk       tracker.Tracker
	model     llm.Client
	git       GitOps
	preflight PreflightRunner
	store     *state.Store
}

// New wires a Pipeline from its collaborators.
func New(cfg *config.Config, trk tracker.Tracker, model llm.Client, git GitOps, pf PreflightRunner, st *state.Store) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		trk:       trk,
		model:     model,
		git:       git,
		preflight: pf,
		store:     st,
	}
}

// Process runs the full state machine for one issue. On success the issue is
// marked processed; on any fatal error it is left unmarked so the next poll
// tick retries it. The returned Result reflects the furthest step reached
// even when err is non-nil.
func (p *Pipeline) Process(ctx context.Context, issue tracker.Issue) (*Result, error) {
	res := &Result{}
	log := slog.With("issue", issue.Number)

	if p.store.IsProcessed(issue.Number) {
		log.Debug("issue already processed, skipping")
		res.Step = StepDone
		return res, nil
	}

	log.Info("processing issue", "title", issue.Title)

	res, err := p.run(ctx, issue, log)
	p.writeReport(issue, res, err)
	if err != nil {
		return res, fmt.Errorf("issue #%d: %w", issue.Number, err)
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, issue tracker.Issue, log *slog.Logger) (*Result, error) {
	res := &Result{}
	repoSlug := p.cfg.Repo.Owner + "/" + p.cfg.Repo.Name

	// Acknowledgment is advisory: a comment failure must not stop the work.
	ack := "I'm on it. Working on a patch for this issue; a pull request will follow if I can produce one."
	if err := p.trk.CreateComment(ctx, issue.Number, ack); err != nil {
		log.Warn("failed to post acknowledgment comment", "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("ack comment failed: %v", err))
	}
	res.Step = StepAcked

	if err := p.git.ResetToCleanBase(ctx, gitx.RemoteName, p.cfg.Repo.BaseBranch); err != nil {
		return res, fmt.Errorf("resetting to clean base: %w", err)
	}
	res.Step = StepBaseReset

	branch := gitx.BranchName(issue.Number, issue.Title)
	if err := p.git.CreateTopicBranch(ctx, branch); err != nil {
		return res, fmt.Errorf("creating topic branch %s: %w", branch, err)
	}
	res.Branch = branch
	res.Step = StepBranched

	keywords := promptctx.Keywords(issue.Title, issue.Body)
	files := promptctx.SelectFiles(p.git.Dir(), keywords)
	log.Debug("built model context", "keywords", len(keywords), "files", len(files))

	prompt, err := promptctx.Build(repoSlug, issue, p.git.Dir(), files)
	if err != nil {
		return res, fmt.Errorf("building prompt: %w", err)
	}
	res.Step = StepPrompted

	completion, err := p.model.Generate(ctx, llm.GenerateRequest{
		Model:   p.cfg.Model.Name,
		Prompt:  prompt,
		Options: p.cfg.Model.Options,
	})
	if err != nil {
		return res, fmt.Errorf("model generation: %w", err)
	}
	res.Step = StepCompleted

	patch, err := diff.Extract(completion.Response)
	if err != nil {
		return res, err
	}
	if err := diff.Validate(patch); err != nil {
		return res, err
	}
	res.ChangedFiles = diff.ChangedFiles(patch)
	res.Step = StepDiffed

	if err := p.git.ApplyPatch(ctx, patch, issue.Number); err != nil {
		return res, err
	}
	res.Step = StepApplied

	report := p.preflight.Run(ctx, p.git.Dir())
	res.Step = StepPreflighted

	commitMsg := fmt.Sprintf("fix: %s (#%d)", issue.Title, issue.Number)
	if err := p.git.CommitAll(ctx, commitMsg); err != nil {
		return res, fmt.Errorf("committing: %w", err)
	}
	if sha, err := p.git.HeadSHA(ctx); err == nil {
		res.CommitSHA = sha
	}
	res.Step = StepCommitted

	if err := p.git.Publish(ctx, p.cfg.Github.Token, p.cfg.Repo.Owner, p.cfg.Repo.Name, branch); err != nil {
		return res, err
	}
	res.Step = StepPushed

	pr, err := p.trk.CreatePullRequest(ctx, tracker.NewPullRequest{
		Title: prTitle(issue),
		Body:  prBody(issue, res.ChangedFiles, report, completion.Response),
		Head:  branch,
		Base:  p.cfg.Repo.BaseBranch,
	})
	if err != nil {
		return res, fmt.Errorf("opening pull request: %w", err)
	}
	res.PRNumber = pr.Number
	res.PRURL = pr.URL
	res.Step = StepPROpened
	log.Info("pull request opened", "pr", pr.Number, "url", pr.URL)

	if err := p.store.MarkProcessed(issue.Number, pr.URL); err != nil {
		return res, fmt.Errorf("recording processed state: %w", err)
	}
	res.Step = StepDone
	return res, nil
}

// prTitle generates the PR title: the issue title plus the agent marker.
func prTitle(issue tracker.Issue) string {
	return strings.TrimSpace(issue.Title) + " [patchpilot]"
}
