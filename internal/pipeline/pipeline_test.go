package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchpilot/patchpilot/internal/config"
	"github.com/patchpilot/patchpilot/internal/diff"
	"github.com/patchpilot/patchpilot/internal/llm"
	"github.com/patchpilot/patchpilot/internal/preflight"
	"github.com/patchpilot/patchpilot/internal/state"
	"github.com/patchpilot/patchpilot/internal/tracker"
)

// fakeGit is a scripted GitOps implementation.
type fakeGit struct {
	dir         string
	calls       []string
	resetErr    error
	applyErr    error
	commitErr   error
	publishErr  error
	appliedDiff string
}

func (f *fakeGit) ResetToCleanBase(_ context.Context, remote, branch string) error {
	f.calls = append(f.calls, "reset "+remote+"/"+branch)
	return f.resetErr
}

func (f *fakeGit) CreateTopicBranch(_ context.Context, name string) error {
	f.calls = append(f.calls, "branch "+name)
	return nil
}

func (f *fakeGit) ApplyPatch(_ context.Context, d string, _ int) error {
	f.calls = append(f.calls, "apply")
	f.appliedDiff = d
	return f.applyErr
}

func (f *fakeGit) CommitAll(_ context.Context, message string) error {
	f.calls = append(f.calls, "commit "+message)
	return f.commitErr
}

func (f *fakeGit) Publish(_ context.Context, _, _, _, branch string) error {
	f.calls = append(f.calls, "publish "+branch)
	return f.publishErr
}

func (f *fakeGit) HeadSHA(_ context.Context) (string, error) { return "abc1234", nil }

func (f *fakeGit) Dir() string { return f.dir }

// fakePreflight returns a canned report.
type fakePreflight struct {
	report preflight.Report
}

func (f *fakePreflight) Run(_ context.Context, _ string) preflight.Report { return f.report }

const fencedDiffResponse = "The session lookup crashes on a missing key; use .get instead.\n\n" +
	"```diff\n--- a/auth/login.py\n+++ b/auth/login.py\n@@ -1,2 +1,2 @@\n def login(user):\n-    return sessions[user.id]\n+    return sessions.get(user.id)\n```\n"

type harness struct {
	cfg   *config.Config
	trk   *tracker.MockTracker
	model *llm.MockClient
	git   *fakeGit
	pf    *fakePreflight
	store *state.Store
	pipe  *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	workDir := t.TempDir()
	// Anchor file only; nothing matches the "login"/"crash" keywords, so the
	// candidate set falls back to the anchor allow-list.
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "pyproject.toml"), []byte("[project]\n"), 0644))

	cfg := config.DefaultConfig()
	cfg.Repo.Owner = "acme"
	cfg.Repo.Name = "webapp"
	cfg.Repo.WorkDir = workDir
	cfg.Agent.StateDir = t.TempDir()
	cfg.Github.Token = "test-token"

	st, err := state.Load(cfg.Agent.StateDir)
	require.NoError(t, err)

	h := &harness{
		cfg:   &cfg,
		trk:   tracker.NewMockTracker(),
		model: llm.NewMockClient(),
		git:   &fakeGit{dir: workDir},
		pf:    &fakePreflight{report: preflight.Report{Log: "all checks passed\n"}},
		store: st,
	}
	h.model.DefaultResult = fencedDiffResponse
	h.pipe = New(h.cfg, h.trk, h.model, h.git, h.pf, h.store)
	return h
}

var loginIssue = tracker.Issue{
	Number: 42,
	Title:  "Fix login crash",
	Body:   "",
	Labels: []string{"patchpilot"},
	URL:    "https://github.com/acme/webapp/issues/42",
}

func TestProcessHappyPath(t *testing.T) {
	h := newHarness(t)

	res, err := h.pipe.Process(context.Background(), loginIssue)
	require.NoError(t, err)
	assert.Equal(t, StepDone, res.Step)
	assert.Equal(t, "patchpilot/issue-42-fix-login-crash", res.Branch)
	assert.Equal(t, []string{"auth/login.py"}, res.ChangedFiles)
	assert.NotEmpty(t, res.PRURL)

	// Dedup store now contains the issue, and the extracted diff (not the
	// surrounding prose) is what reached git.
	assert.True(t, h.store.IsProcessed(42))
	assert.True(t, strings.HasPrefix(h.git.appliedDiff, "--- a/auth/login.py"))

	// Ack comment was posted.
	require.Len(t, h.trk.Comments, 1)
	assert.Equal(t, 42, h.trk.Comments[0].Number)

	// The PR carries the agent marker, the branch, and the closing reference.
	require.Len(t, h.trk.CreatedPRs, 1)
	pr := h.trk.CreatedPRs[0]
	assert.Equal(t, "Fix login crash [patchpilot]", pr.Title)
	assert.Equal(t, "patchpilot/issue-42-fix-login-crash", pr.Head)
	assert.Equal(t, "main", pr.Base)
	assert.Contains(t, pr.Body, "Closes #42")
	assert.Contains(t, pr.Body, "`auth/login.py`")
	assert.Contains(t, pr.Body, "all checks passed")
	// Rationale is quoted with the diff fence redacted.
	assert.Contains(t, pr.Body, "[diff omitted]")
	assert.NotContains(t, pr.Body, "+    return sessions.get(user.id)")

	// The prompt fell back to the anchor allow-list.
	prompts := h.model.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "pyproject.toml")
}

func TestProcessNoDiffAborts(t *testing.T) {
	h := newHarness(t)
	h.model.DefaultResult = "I believe the bug is in the login handler but I cannot produce a patch."

	res, err := h.pipe.Process(context.Background(), loginIssue)
	require.Error(t, err)
	assert.ErrorIs(t, err, diff.ErrNoDiff)
	assert.Equal(t, StepCompleted, res.Step)

	// Not marked processed: the next tick retries.
	assert.False(t, h.store.IsProcessed(42))
	assert.Empty(t, h.trk.CreatedPRs)

	// A second attempt runs the pipeline again rather than skipping.
	_, err = h.pipe.Process(context.Background(), loginIssue)
	assert.Error(t, err)
	assert.Len(t, h.model.Prompts(), 2)
}

func TestProcessInvalidPreambleAborts(t *testing.T) {
	h := newHarness(t)
	// Has ---/+++ lines but starts with prose, failing the preamble gate.
	h.model.DefaultResult = "Here you go:\n--- a/x.py\n+++ b/x.py\n"

	_, err := h.pipe.Process(context.Background(), loginIssue)
	assert.ErrorIs(t, err, diff.ErrInvalidDiff)
	assert.False(t, h.store.IsProcessed(42))
}

func TestProcessIdempotentForProcessedIssue(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.MarkProcessed(42, "https://github.com/acme/webapp/pull/9"))

	res, err := h.pipe.Process(context.Background(), loginIssue)
	require.NoError(t, err)
	assert.Equal(t, StepDone, res.Step)

	// No git activity, no comments, no model calls, no PRs.
	assert.Empty(t, h.git.calls)
	assert.Empty(t, h.trk.Comments)
	assert.Empty(t, h.model.Prompts())
	assert.Empty(t, h.trk.CreatedPRs)
}

func TestProcessAckFailureIsNonFatal(t *testing.T) {
	h := newHarness(t)
	h.trk.CommentErr = errors.New("503 from tracker")

	res, err := h.pipe.Process(context.Background(), loginIssue)
	require.NoError(t, err)
	assert.Equal(t, StepDone, res.Step)
	assert.NotEmpty(t, res.Warnings)
	assert.True(t, h.store.IsProcessed(42))
}

func TestProcessPreflightFailureDoesNotBlock(t *testing.T) {
	h := newHarness(t)
	h.pf.report = preflight.Report{
		Log: "$ poetry install --no-root\ncould not resolve dependencies\n(exit: exit status 1)\n",
		Ran: []string{"pip install poetry", "poetry install --no-root"},
	}

	res, err := h.pipe.Process(context.Background(), loginIssue)
	require.NoError(t, err)
	assert.Equal(t, StepDone, res.Step)

	require.Len(t, h.trk.CreatedPRs, 1)
	assert.Contains(t, h.trk.CreatedPRs[0].Body, "could not resolve dependencies")
}

func TestProcessApplyFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.git.applyErr = errors.New("patch does not apply")

	res, err := h.pipe.Process(context.Background(), loginIssue)
	require.Error(t, err)
	assert.Equal(t, StepDiffed, res.Step)
	assert.False(t, h.store.IsProcessed(42))
	assert.Empty(t, h.trk.CreatedPRs)
}

func TestProcessPushFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.git.publishErr = errors.New("remote rejected")

	res, err := h.pipe.Process(context.Background(), loginIssue)
	require.Error(t, err)
	assert.Equal(t, StepCommitted, res.Step)
	assert.False(t, h.store.IsProcessed(42))
}

func TestProcessWritesAttemptReport(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipe.Process(context.Background(), loginIssue)
	require.NoError(t, err)

	reportPath := ReportPath(h.cfg.Agent.StateDir, 42)
	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "outcome: done")
	assert.Contains(t, string(data), "patchpilot/issue-42-fix-login-crash")
}

func TestPRBodyTruncatesRationale(t *testing.T) {
	h := newHarness(t)
	h.model.DefaultResult = strings.Repeat("r", 5000) + "\n\n```diff\n--- a/auth/login.py\n+++ b/auth/login.py\n@@ -1,1 +1,1 @@\n-x\n+y\n```\n"

	_, err := h.pipe.Process(context.Background(), loginIssue)
	require.NoError(t, err)

	body := h.trk.CreatedPRs[0].Body
	assert.Contains(t, body, "_(truncated)_")
}
