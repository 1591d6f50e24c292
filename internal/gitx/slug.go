package gitx

import (
	"fmt"
	"strings"
)

// maxSlugLen bounds the slugified title portion of a branch name.
const maxSlugLen = 60

// slugPlaceholder is used when a title slugifies to nothing.
const slugPlaceholder = "task"

// BranchName derives the deterministic topic branch name for an issue.
// The same issue number and title always produce the same name, which makes
// re-runs land on the same branch instead of scattering near-duplicates.
func BranchName(issueNumber int, title string) string {
	return fmt.Sprintf("patchpilot/issue-%d-%s", issueNumber, Slugify(title))
}

// Slugify lowercases the title, collapses every run of non-alphanumeric
// characters to a single hyphen, trims leading/trailing hyphens, and
// truncates to maxSlugLen. An all-symbol title yields the placeholder.
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		return slugPlaceholder
	}
	return slug
}
