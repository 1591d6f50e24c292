package gitx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrApplyFailed indicates both apply strategies failed.
var ErrApplyFailed = errors.New("patch could not be applied")

// ErrRejects indicates the apply left reject files in the tree, meaning part
// of the patch was not placed. Committing such a tree would silently publish
// an incomplete change, so this is fatal.
var ErrRejects = errors.New("patch applied with rejected hunks")

// ApplyPatch stages a validated unified diff into the worktree.
//
// The diff is written to a scratch file first, then applied in two tiers:
//
//  1. git apply --index --whitespace=fix: the fast path, with trailing
//     whitespace and line-ending noise auto-corrected.
//  2. git apply --3way --whitespace=nowarn: permissive fallback that
//     resolves drifted context through a three-way merge against the
//     blobs named in the diff's index lines. A merge conflict exits
//     non-zero and fails the apply.
//
// After the fallback the tree is scanned for .rej artifacts; any found fail
// the apply with ErrRejects.
func (w *Worktree) ApplyPatch(ctx context.Context, d string, issueNumber int) error {
	patchPath, err := w.persistDiff(d, issueNumber)
	if err != nil {
		return err
	}

	if out, err := w.git(ctx, "apply", "--index", "--whitespace=fix", patchPath); err == nil {
		slog.Debug("patch applied on fast path", "issue", issueNumber)
		return nil
	} else {
		slog.Debug("fast-path apply failed, trying 3-way", "issue", issueNumber, "output", strings.TrimSpace(out))
	}

	if _, err := w.git(ctx, "apply", "--3way", "--whitespace=nowarn", patchPath); err != nil {
		return fmt.Errorf("%w: %v", ErrApplyFailed, err)
	}

	rejects, err := w.findRejects()
	if err != nil {
		return fmt.Errorf("scanning for reject files: %w", err)
	}
	if len(rejects) > 0 {
		return fmt.Errorf("%w: %s", ErrRejects, strings.Join(rejects, ", "))
	}

	// The 3-way path applies to the working tree only; stage the result so
	// the caller sees the same post-state as the fast path.
	if _, err := w.git(ctx, "add", "-A"); err != nil {
		return err
	}

	slog.Debug("patch applied via 3-way fallback", "issue", issueNumber)
	return nil
}

// persistDiff writes the diff to the scratch directory before any apply
// attempt, so a failed application can be inspected afterwards.
func (w *Worktree) persistDiff(d string, issueNumber int) (string, error) {
	if err := os.MkdirAll(w.scratchDir, 0755); err != nil {
		return "", fmt.Errorf("creating scratch directory: %w", err)
	}
	if !strings.HasSuffix(d, "\n") {
		d += "\n"
	}
	path := filepath.Join(w.scratchDir, fmt.Sprintf("issue-%d.patch", issueNumber))
	if err := os.WriteFile(path, []byte(d), 0644); err != nil {
		return "", fmt.Errorf("persisting diff: %w", err)
	}
	return path, nil
}

// findRejects walks the worktree looking for .rej artifacts.
func (w *Worktree) findRejects() ([]string, error) {
	var rejects []string
	err := filepath.WalkDir(w.dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if entry.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(entry.Name(), ".rej") {
			rel, relErr := filepath.Rel(w.dir, path)
			if relErr != nil {
				rel = path
			}
			rejects = append(rejects, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rejects, nil
}
