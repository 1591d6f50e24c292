// Package promptctx selects repository files as model context for an issue
// and renders the generation prompt. Selection is deliberately cheap: a
// keyword scan over file paths, topped up with a fixed set of anchor files
// so the model always sees some grounding even when the scan finds nothing.
package promptctx

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/patchpilot/patchpilot/internal/prompts"
	"github.com/patchpilot/patchpilot/internal/tracker"
)

const (
	// minKeywordLen filters out short stopword-ish tokens.
	minKeywordLen = 4
	// maxKeywords caps the scan terms per issue.
	maxKeywords = 12
	// maxFiles bounds the candidate file set.
	maxFiles = 10
	// fileByteBudget truncates each file's contribution to the prompt.
	fileByteBudget = 12 * 1024
)

// anchorFiles are always included when present: manifests, entry points,
// and the test directory give the model a map of the project.
var anchorFiles = []string{
	"pyproject.toml",
	"poetry.lock",
	"setup.py",
	"setup.cfg",
	"README.md",
	"main.py",
	"app.py",
}

// skipDirs are never walked during the keyword scan.
var skipDirs = map[string]bool{
	".git":         true,
	".venv":        true,
	"venv":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	".tox":         true,
}

// skipExts are binaryish extensions excluded from candidates.
var skipExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".gz": true, ".whl": true, ".so": true,
	".pyc": true, ".db": true, ".sqlite": true, ".woff": true, ".woff2": true,
}

// Keywords tokenizes the issue title and body into scan terms: lowercased,
// length >= 4, de-duplicated in first-seen order, capped at 12.
func Keywords(title, body string) []string {
	fields := strings.FieldsFunc(strings.ToLower(title+" "+body), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '-')
	})

	seen := make(map[string]bool)
	var out []string
	for _, f := range fields {
		if len(f) < minKeywordLen || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

// SelectFiles returns the candidate file set for an issue: existing anchor
// files first, then keyword matches over repository-relative paths, ordered
// and capped at 10.
func SelectFiles(root string, keywords []string) []string {
	seen := make(map[string]bool)
	var selected []string

	add := func(path string) bool {
		if seen[path] || len(selected) >= maxFiles {
			return len(selected) < maxFiles
		}
		seen[path] = true
		selected = append(selected, path)
		return true
	}

	for _, anchor := range anchorFiles {
		if _, err := os.Stat(filepath.Join(root, anchor)); err == nil {
			add(anchor)
		}
	}
	// src/ and the test directory anchor via their top-level Python files.
	for _, dir := range []string{"src", "tests"} {
		for _, name := range topLevelPyFiles(filepath.Join(root, dir)) {
			add(filepath.Join(dir, name))
		}
	}

	if len(keywords) == 0 || len(selected) >= maxFiles {
		return selected
	}

	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			if skipDirs[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if skipExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		lower := strings.ToLower(rel)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				if !add(rel) {
					return filepath.SkipAll
				}
				break
			}
		}
		return nil
	})

	return selected
}

func topLevelPyFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".py") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files
}

// Build renders the generation prompt for an issue from its candidate file
// set. File contents are truncated to the per-file byte budget.
func Build(repo string, issue tracker.Issue, root string, files []string) (string, error) {
	var sb strings.Builder
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(root, f))
		if err != nil {
			continue
		}
		truncated := false
		if len(data) > fileByteBudget {
			data = data[:fileByteBudget]
			truncated = true
		}
		fmt.Fprintf(&sb, "### %s\n\n```\n%s\n```\n", f, strings.TrimRight(string(data), "\n"))
		if truncated {
			sb.WriteString("(truncated)\n")
		}
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		sb.WriteString("(no repository files selected)\n")
	}

	body := issue.Body
	if strings.TrimSpace(body) == "" {
		body = "(no description provided)"
	}

	return prompts.Execute("issue-patch.md", map[string]string{
		"Repo":   repo,
		"Number": fmt.Sprintf("%d", issue.Number),
		"Title":  issue.Title,
		"Body":   body,
		"Files":  sb.String(),
	})
}
