// Package diff extracts and validates unified diffs from free-text model
// output. Local models wrap patches in markdown fences, emit bare diffs, or
// produce prose with no patch at all; this package decides which case we got.
package diff

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoDiff indicates the model output contains nothing diff-shaped.
var ErrNoDiff = errors.New("no unified diff found in model output")

// ErrInvalidDiff indicates a candidate was found but does not start with a
// recognized diff preamble.
var ErrInvalidDiff = errors.New("extracted text is not a valid unified diff")

var (
	// fenceRe matches a fenced code block tagged diff or patch.
	fenceRe = regexp.MustCompile("(?is)```(?:diff|patch)\\s*\\n(.*?)```")
	// oldFileRe / newFileRe anchor the unified diff file headers.
	oldFileRe = regexp.MustCompile(`(?m)^--- `)
	newFileRe = regexp.MustCompile(`(?m)^\+\+\+ `)
)

// Extract returns the unified diff candidate embedded in raw model output.
// A fenced ```diff or ```patch block wins; otherwise raw text containing
// both file header lines is taken verbatim. Returns ErrNoDiff when neither
// form is present.
func Extract(raw string) (string, error) {
	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		candidate := strings.TrimSpace(m[1])
		if candidate != "" {
			return candidate, nil
		}
	}

	if oldFileRe.MatchString(raw) && newFileRe.MatchString(raw) {
		return strings.TrimSpace(raw), nil
	}

	return "", ErrNoDiff
}

// Validate enforces the diff preamble gate: the candidate must begin with a
// `--- a/` file header or a `diff --git` combined header.
func Validate(d string) error {
	if strings.HasPrefix(d, "--- a/") || strings.HasPrefix(d, "diff --git") {
		return nil
	}
	return ErrInvalidDiff
}

// Redact replaces fenced diff/patch blocks with a marker. Used when quoting
// model rationale in PR bodies, where repeating the patch is noise.
func Redact(text string) string {
	return fenceRe.ReplaceAllString(text, "```\n[diff omitted]\n```")
}
