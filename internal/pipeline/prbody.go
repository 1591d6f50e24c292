package pipeline

import (
	"fmt"
	"strings"

	"github.com/patchpilot/patchpilot/internal/diff"
	"github.com/patchpilot/patchpilot/internal/preflight"
	"github.com/patchpilot/patchpilot/internal/tracker"
)

// maxRationaleLen bounds the quoted model rationale in the PR body.
const maxRationaleLen = 2000

// maxIssueQuoteLen bounds the quoted issue body.
const maxIssueQuoteLen = 1200

// prBody renders the structured pull request description: issue context,
// changed files, the preflight log in a collapsible section, and the model's
// rationale with any embedded diff fences redacted.
func prBody(issue tracker.Issue, changed []string, report preflight.Report, completion string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Automated patch for [#%d](%s): %s\n\n", issue.Number, issue.URL, issue.Title)

	if strings.TrimSpace(issue.Body) != "" {
		b.WriteString("### Issue\n\n")
		b.WriteString(quote(truncate(issue.Body, maxIssueQuoteLen)))
		b.WriteString("\n\n")
	}

	b.WriteString("### Changed files\n\n")
	if len(changed) == 0 {
		b.WriteString("_none detected_\n")
	}
	for _, f := range changed {
		fmt.Fprintf(&b, "- `%s`\n", f)
	}
	b.WriteString("\n")

	b.WriteString("<details>\n<summary>Preflight log</summary>\n\n")
	b.WriteString("```\n")
	b.WriteString(strings.TrimRight(report.Log, "\n"))
	b.WriteString("\n```\n\n</details>\n\n")
	b.WriteString("Preflight output is informational; CI on this pull request is the source of truth.\n\n")

	rationale := strings.TrimSpace(diff.Redact(completion))
	if rationale != "" {
		b.WriteString("### Model notes\n\n")
		b.WriteString(truncate(rationale, maxRationaleLen))
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Closes #%d\n", issue.Number)
	return b.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n\n_(truncated)_"
}

func quote(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}
