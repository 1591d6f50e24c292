// Package preflight runs whatever validation tooling the target repository
// declares, purely for reporting. It computes no verdict: the PR description
// quotes the log and defers judgment to the repository's own CI.
package preflight

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// commandTimeout bounds each individual preflight command.
const commandTimeout = 10 * time.Minute

// Report is the outcome of a preflight run. It never carries an error;
// command failures are part of the log.
type Report struct {
	// Log is the concatenated invocation lines and captured output of every
	// command that ran.
	Log string
	// Ran lists the command invocations in order.
	Ran []string
}

// Runner executes the preflight policy against a working tree.
type Runner struct {
	// execCommand runs a command and returns its combined output.
	// Overridable for tests.
	execCommand func(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// NewRunner creates a Runner that shells out to the real tools.
func NewRunner() *Runner {
	return &Runner{execCommand: runCommand}
}

func runCommand(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Run evaluates the tooling policy against dir and executes what matches.
// Rules are ordered and short-circuit: a locked dependency manifest wins
// over a bare project manifest or tests directory. Hook configuration is
// checked independently of both.
func (r *Runner) Run(ctx context.Context, dir string) Report {
	var log strings.Builder
	var ran []string

	run := func(name string, args ...string) bool {
		invocation := name
		if len(args) > 0 {
			invocation += " " + strings.Join(args, " ")
		}
		ran = append(ran, invocation)

		out, err := r.execCommand(ctx, dir, name, args...)

		fmt.Fprintf(&log, "$ %s\n%s", invocation, string(out))
		if err != nil {
			fmt.Fprintf(&log, "(exit: %v)\n", err)
		}
		log.WriteString("\n")
		return err == nil
	}

	switch {
	case exists(dir, "poetry.lock"):
		slog.Debug("preflight: poetry project detected", "dir", dir)
		run("pip", "install", "poetry")
		if run("poetry", "install", "--no-root") {
			run("poetry", "run", "pytest")
		} else {
			// Keep the partial log; a broken dependency install is itself
			// useful information for the PR reviewer.
			slog.Warn("preflight: dependency install failed, skipping test run")
		}

	case exists(dir, "pyproject.toml") || isDir(dir, "tests"):
		slog.Debug("preflight: test suite detected", "dir", dir)
		run("pip", "install", "pytest")
		run("pytest")
	}

	if exists(dir, ".pre-commit-config.yaml") {
		slog.Debug("preflight: pre-commit hooks detected", "dir", dir)
		run("pip", "install", "pre-commit")
		// Hook failures are expected and reported, never escalated.
		run("pre-commit", "run", "--all-files")
	}

	if len(ran) == 0 {
		log.WriteString("no test or lint tooling detected\n")
	}

	return Report{Log: log.String(), Ran: ran}
}

func exists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

func isDir(dir, name string) bool {
	info, err := os.Stat(filepath.Join(dir, name))
	return err == nil && info.IsDir()
}
