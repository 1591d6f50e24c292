package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchpilot/patchpilot/internal/config"
	"github.com/patchpilot/patchpilot/internal/pipeline"
	"github.com/patchpilot/patchpilot/internal/state"
	"github.com/patchpilot/patchpilot/internal/tracker"
)

// fakeProcessor records processed issue numbers and fails on demand.
type fakeProcessor struct {
	processed []int
	failOn    map[int]error
}

func (f *fakeProcessor) Process(_ context.Context, issue tracker.Issue) (*pipeline.Result, error) {
	f.processed = append(f.processed, issue.Number)
	if err, ok := f.failOn[issue.Number]; ok {
		return &pipeline.Result{Step: pipeline.StepPrompted}, err
	}
	return &pipeline.Result{Step: pipeline.StepDone, PRURL: "https://example.test/pr"}, nil
}

func newTestLoop(t *testing.T) (*Loop, *tracker.MockTracker, *fakeProcessor, *state.Store) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Agent.StateDir = t.TempDir()
	cfg.Agent.PollInterval = "50ms"

	st, err := state.Load(cfg.Agent.StateDir)
	require.NoError(t, err)

	trk := tracker.NewMockTracker()
	proc := &fakeProcessor{failOn: map[int]error{}}

	l := NewLoop(&cfg, trk, proc, st)
	l.failurePause = 0
	return l, trk, proc, st
}

func TestTickProcessesIssuesInOrder(t *testing.T) {
	l, trk, proc, _ := newTestLoop(t)
	trk.Issues = []tracker.Issue{
		{Number: 7, Title: "first", Labels: []string{"patchpilot"}},
		{Number: 9, Title: "second", Labels: []string{"patchpilot"}},
	}

	l.tick(context.Background())

	assert.Equal(t, []int{7, 9}, proc.processed)
}

func TestTickSkipsProcessedIssues(t *testing.T) {
	l, trk, proc, st := newTestLoop(t)
	trk.Issues = []tracker.Issue{
		{Number: 7, Title: "done already", Labels: []string{"patchpilot"}},
		{Number: 9, Title: "new", Labels: []string{"patchpilot"}},
	}
	require.NoError(t, st.MarkProcessed(7, ""))

	l.tick(context.Background())

	assert.Equal(t, []int{9}, proc.processed)
}

func TestTickContinuesAfterFailure(t *testing.T) {
	l, trk, proc, st := newTestLoop(t)
	trk.Issues = []tracker.Issue{
		{Number: 7, Title: "will fail", Labels: []string{"patchpilot"}},
		{Number: 9, Title: "fine", Labels: []string{"patchpilot"}},
	}
	proc.failOn[7] = errors.New("model timeout")

	l.tick(context.Background())

	// Both attempted; the failed one stays unprocessed for the next tick.
	assert.Equal(t, []int{7, 9}, proc.processed)
	assert.False(t, st.IsProcessed(7))
}

func TestTickFlushesState(t *testing.T) {
	l, trk, _, st := newTestLoop(t)
	trk.Issues = nil

	l.tick(context.Background())

	assert.False(t, st.LastRun().IsZero())
	_, err := os.Stat(filepath.Join(l.cfg.Agent.StateDir, "state.yaml"))
	assert.NoError(t, err)
}

func TestTickListFailureStillFlushes(t *testing.T) {
	l, trk, proc, st := newTestLoop(t)
	trk.ListErr = errors.New("tracker down")

	l.tick(context.Background())

	assert.Empty(t, proc.processed)
	assert.False(t, st.LastRun().IsZero())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	l, _, _, _ := newTestLoop(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}
