// Package gitx drives the git command-line tool for branch lifecycle and
// patch application. All operations run against a single Worktree, which is
// the one mutable resource the agent owns; ResetToCleanBase is what makes
// attempts independent of each other.
package gitx

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// RemoteName is the name of the default upstream remote.
const RemoteName = "origin"

// ephemeralRemote is the short-lived remote used for credentialed pushes.
// It exists only for the duration of a Publish call.
const ephemeralRemote = "patchpilot-push"

// Worktree is a handle on the local checkout the agent mutates.
type Worktree struct {
	dir         string
	authorName  string
	authorEmail string
	scratchDir  string
}

// NewWorktree creates a Worktree for the checkout at dir. Diffs are
// persisted under scratchDir before application for post-mortem inspection.
func NewWorktree(dir, authorName, authorEmail, scratchDir string) *Worktree {
	return &Worktree{
		dir:         dir,
		authorName:  authorName,
		authorEmail: authorEmail,
		scratchDir:  scratchDir,
	}
}

// Dir returns the worktree root.
func (w *Worktree) Dir() string {
	return w.dir
}

// git runs a git command in the worktree and returns its combined output.
func (w *Worktree) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = w.dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}

// ResetToCleanBase fetches the named branch from the remote, checks it out,
// hard-resets to it, and removes every untracked and ignored file. After it
// returns, the worktree is byte-identical to the upstream branch; nothing
// from a previous attempt survives.
func (w *Worktree) ResetToCleanBase(ctx context.Context, remote, branch string) error {
	if _, err := w.git(ctx, "fetch", remote, branch); err != nil {
		return err
	}
	if _, err := w.git(ctx, "checkout", branch); err != nil {
		return err
	}
	if _, err := w.git(ctx, "reset", "--hard", remote+"/"+branch); err != nil {
		return err
	}
	if _, err := w.git(ctx, "clean", "-fdx"); err != nil {
		return err
	}
	slog.Debug("worktree reset to clean base", "remote", remote, "branch", branch)
	return nil
}

// CreateTopicBranch creates and checks out a branch from the current HEAD.
// Uses -B so a re-run with the same deterministic name does not fail on an
// existing branch.
func (w *Worktree) CreateTopicBranch(ctx context.Context, name string) error {
	_, err := w.git(ctx, "checkout", "-B", name)
	return err
}

// CommitAll stages every change and commits it under the bot identity with
// a sign-off trailer. Returns an error when there is nothing to commit.
func (w *Worktree) CommitAll(ctx context.Context, message string) error {
	status, err := w.git(ctx, "status", "--porcelain")
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		return fmt.Errorf("no changes to commit")
	}
	if _, err := w.git(ctx, "add", "-A"); err != nil {
		return err
	}
	_, err = w.git(ctx,
		"-c", "user.name="+w.authorName,
		"-c", "user.email="+w.authorEmail,
		"commit", "--signoff", "-m", message)
	return err
}

// HeadSHA returns the abbreviated SHA of the current HEAD.
func (w *Worktree) HeadSHA(ctx context.Context) (string, error) {
	out, err := w.git(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Publish pushes the topic branch through an ephemeral remote whose URL
// embeds the token. The remote is removed before Publish returns on every
// path, so the credential is never resolvable from the repository config
// after the push. A removal failure after a failed push is logged only; a
// removal failure after a successful push is an error, because the token
// would otherwise persist.
func (w *Worktree) Publish(ctx context.Context, token, owner, repo, branch string) error {
	remoteURL := fmt.Sprintf("https://x-access-token:%s@github.com/%s/%s.git", token, owner, repo)
	return w.publishTo(ctx, remoteURL, token, branch)
}

// publishTo does the push through the ephemeral remote. The push is forced:
// the remote is recreated on every call and carries no remote-tracking refs,
// so --force-with-lease would only ever accept a branch that does not exist
// yet, and the patchpilot/issue-N-* namespace is written by nobody else.
func (w *Worktree) publishTo(ctx context.Context, remoteURL, token, branch string) error {
	// A stale remote from a crashed run would make remote add fail; clear it.
	_, _ = w.git(ctx, "remote", "remove", ephemeralRemote)

	if _, err := w.git(ctx, "remote", "add", ephemeralRemote, remoteURL); err != nil {
		return fmt.Errorf("adding ephemeral remote: %w", err)
	}

	_, pushErr := w.git(ctx, "push", "--force", ephemeralRemote, "HEAD:refs/heads/"+branch)

	if _, rmErr := w.git(ctx, "remote", "remove", ephemeralRemote); rmErr != nil {
		if pushErr != nil {
			slog.Warn("failed to remove ephemeral remote after failed push", "error", rmErr)
		} else {
			return fmt.Errorf("removing ephemeral remote: %w", rmErr)
		}
	}

	if pushErr != nil {
		return fmt.Errorf("pushing %s: %w", branch, withoutToken(pushErr, token))
	}
	return nil
}

// withoutToken scrubs the credential from an error before it reaches logs.
func withoutToken(err error, token string) error {
	if token == "" {
		return err
	}
	msg := strings.ReplaceAll(err.Error(), token, "***")
	return fmt.Errorf("%s", msg)
}
