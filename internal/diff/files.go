package diff

import (
	"strings"

	"github.com/waigani/diffparser"
)

// ChangedFiles returns the ordered, de-duplicated list of repository-relative
// paths a diff touches. Deleted files report their original path; everything
// else reports the new path.
func ChangedFiles(d string) []string {
	parsed, err := diffparser.Parse(d)
	if err == nil && len(parsed.Files) > 0 {
		return dedupe(filesFromParsed(parsed))
	}
	// Header scan fallback for diffs the parser chokes on.
	return dedupe(filesFromHeaders(d))
}

func filesFromParsed(parsed *diffparser.Diff) []string {
	var paths []string
	for _, f := range parsed.Files {
		path := cleanPath(f.NewName)
		if f.Mode == diffparser.DELETED || path == "" {
			path = cleanPath(f.OrigName)
		}
		if path != "" {
			paths = append(paths, path)
		}
	}
	return paths
}

// cleanPath strips diff path prefixes and /dev/null placeholders.
func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "a/")
	p = strings.TrimPrefix(p, "b/")
	if p == "/dev/null" {
		return ""
	}
	return p
}

func filesFromHeaders(d string) []string {
	var paths []string
	for _, line := range strings.Split(d, "\n") {
		var path string
		switch {
		case strings.HasPrefix(line, "+++ "):
			path = strings.TrimPrefix(line, "+++ ")
		case strings.HasPrefix(line, "--- "):
			path = strings.TrimPrefix(line, "--- ")
		default:
			continue
		}
		path = cleanPath(path)
		if path == "" {
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	var out []string
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
