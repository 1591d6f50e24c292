package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExec records invocations and returns scripted results keyed by the
// command name.
type fakeExec struct {
	calls  []string
	output map[string]string
	fail   map[string]bool
}

func (f *fakeExec) run(_ context.Context, _ string, name string, args ...string) ([]byte, error) {
	invocation := name
	for _, a := range args {
		invocation += " " + a
	}
	f.calls = append(f.calls, invocation)

	out := f.output[name]
	if out == "" {
		out = "ok\n"
	}
	if f.fail[name] {
		return []byte(out), errors.New("exit status 1")
	}
	return []byte(out), nil
}

func newTestRunner(f *fakeExec) *Runner {
	return &Runner{execCommand: f.run}
}

func touch(t *testing.T, dir string, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0644))
}

func TestRunPoetryProject(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "poetry.lock")
	touch(t, dir, "pyproject.toml")

	f := &fakeExec{output: map[string]string{"poetry": "installed deps\n"}}
	report := newTestRunner(f).Run(context.Background(), dir)

	assert.Equal(t, []string{
		"pip install poetry",
		"poetry install --no-root",
		"poetry run pytest",
	}, f.calls)
	assert.Contains(t, report.Log, "$ poetry install --no-root")
	assert.Contains(t, report.Log, "installed deps")
}

func TestRunPoetryInstallFailureSkipsTests(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "poetry.lock")

	f := &fakeExec{
		output: map[string]string{"poetry": "could not resolve dependencies\n"},
		fail:   map[string]bool{"poetry": true},
	}
	report := newTestRunner(f).Run(context.Background(), dir)

	// pytest never runs, but the partial log keeps the failure output.
	assert.Equal(t, []string{"pip install poetry", "poetry install --no-root"}, f.calls)
	assert.Contains(t, report.Log, "could not resolve dependencies")
	assert.Contains(t, report.Log, "(exit:")
}

func TestRunPlainPytestProject(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tests"), 0755))

	f := &fakeExec{}
	newTestRunner(f).Run(context.Background(), dir)

	assert.Equal(t, []string{"pip install pytest", "pytest"}, f.calls)
}

func TestRunPreCommitIndependentOfTests(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "pyproject.toml")
	touch(t, dir, ".pre-commit-config.yaml")

	f := &fakeExec{fail: map[string]bool{"pre-commit": true}}
	report := newTestRunner(f).Run(context.Background(), dir)

	assert.Contains(t, f.calls, "pytest")
	assert.Contains(t, f.calls, "pre-commit run --all-files")
	// Hook failure is in the log but Run itself cannot fail.
	assert.Contains(t, report.Log, "$ pre-commit run --all-files")
}

func TestRunNothingDetected(t *testing.T) {
	dir := t.TempDir()

	f := &fakeExec{}
	report := newTestRunner(f).Run(context.Background(), dir)

	assert.Empty(t, f.calls)
	assert.Empty(t, report.Ran)
	assert.Contains(t, report.Log, "no test or lint tooling detected")
}

func TestRunPoetryWinsOverPyproject(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "poetry.lock")
	touch(t, dir, "pyproject.toml")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tests"), 0755))

	f := &fakeExec{}
	newTestRunner(f).Run(context.Background(), dir)

	for _, call := range f.calls {
		assert.NotEqual(t, "pip install pytest", call, fmt.Sprintf("bare pytest rule must not fire: %v", f.calls))
	}
}
