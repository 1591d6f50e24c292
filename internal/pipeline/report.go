package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/patchpilot/patchpilot/internal/store"
	"github.com/patchpilot/patchpilot/internal/tracker"
)

// writeReport persists a per-issue attempt document under the state
// directory. Best-effort: a report write failure is logged, never raised.
func (p *Pipeline) writeReport(issue tracker.Issue, res *Result, attemptErr error) {
	outcome := string(res.Step)
	if attemptErr != nil {
		outcome = "failed_at_" + string(res.Step)
	}

	fm := map[string]any{
		"issue":      issue.Number,
		"title":      issue.Title,
		"outcome":    outcome,
		"updated_at": store.FormatTime(time.Now()),
	}
	if res.Branch != "" {
		fm["branch"] = res.Branch
	}
	if res.CommitSHA != "" {
		fm["commit"] = res.CommitSHA
	}
	if res.PRURL != "" {
		fm["pr_url"] = res.PRURL
	}
	if len(res.ChangedFiles) > 0 {
		fm["changed_files"] = res.ChangedFiles
	}

	var body strings.Builder
	if attemptErr != nil {
		fmt.Fprintf(&body, "## Last error\n\n```\n%v\n```\n\n", attemptErr)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&body, "- warning: %s\n", w)
	}

	path := ReportPath(p.cfg.Agent.StateDir, issue.Number)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		slog.Warn("failed to create attempts directory", "error", err)
		return
	}
	err := store.WithLock(path, store.DefaultLockTimeout, func() error {
		return store.WriteDocument(path, &store.Document{Frontmatter: fm, Body: body.String()})
	})
	if err != nil {
		slog.Warn("failed to write attempt report", "issue", issue.Number, "error", err)
	}
}

// ReportPath returns the attempt report location for an issue.
func ReportPath(stateDir string, issueNumber int) string {
	return filepath.Join(stateDir, "attempts", fmt.Sprintf("issue-%d.md", issueNumber))
}
