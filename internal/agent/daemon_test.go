package agent

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildCommandForwardsFlags(t *testing.T) {
	cmd := childCommand([]string{"--verbose"})
	assert.Equal(t, []string{os.Args[0], "agent", "run", "--verbose"}, cmd.Args)

	cmd = childCommand(nil)
	assert.Equal(t, []string{os.Args[0], "agent", "run"}, cmd.Args)
}

func TestStartDaemonRejectsSecondStart(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- StartDaemon(true, nil, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// The first agent is mid-run, so the second start must see it through
	// the PID file rather than block on the lock.
	err := StartDaemon(true, nil, func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("already running (PID %d)", os.Getpid()))

	close(release)
	require.NoError(t, <-done)
}
