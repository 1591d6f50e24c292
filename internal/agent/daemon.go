package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/patchpilot/patchpilot/internal/store"
)

// PIDFilePath returns the path to the agent PID file.
func PIDFilePath() string {
	return filepath.Join(dataDir(), "patchpilot", "patchpilot.pid")
}

// LogFilePath returns the path to the background agent's log file.
func LogFilePath() string {
	return filepath.Join(dataDir(), "patchpilot", "logs", "patchpilot.log")
}

func dataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		slog.Error("cannot determine home directory; set $HOME or $XDG_DATA_HOME", "error", err)
		os.Exit(1)
	}
	return filepath.Join(home, ".local", "share")
}

// StartDaemon launches the agent. With foreground set it runs inline,
// writing a PID file and blocking until a signal arrives; otherwise it
// re-execs itself detached with output redirected to the log file.
// extraArgs carries persistent flags (such as --verbose) through to the
// detached child. The PID-file lock guards only the running check and the
// PID write, never the loop itself, so a second start reports the running
// agent instead of waiting out the lock.
func StartDaemon(foreground bool, extraArgs []string, run func(ctx context.Context) error) error {
	pidFile := PIDFilePath()
	if err := os.MkdirAll(filepath.Dir(pidFile), 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	err := store.WithLock(pidFile, 5*time.Second, func() error {
		if running, pid, _, _ := DaemonStatus(); running {
			return fmt.Errorf("agent already running (PID %d)", pid)
		}
		if foreground {
			if err := writePIDFile(os.Getpid()); err != nil {
				return fmt.Errorf("writing PID file: %w", err)
			}
			return nil
		}
		return forkDetached(extraArgs)
	})
	if err != nil || !foreground {
		return err
	}
	defer removePIDFile()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM, syscall.SIGINT,
	)
	defer stop()

	return run(ctx)
}

func forkDetached(extraArgs []string) error {
	logFile := LogFilePath()
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	cmd := childCommand(extraArgs)

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	cmd.Stdout = f
	cmd.Stderr = f
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		f.Close()
		return fmt.Errorf("starting agent: %w", err)
	}

	pid := cmd.Process.Pid

	// Release without waiting; the child writes its own PID file.
	cmd.Process.Release()
	f.Close()

	fmt.Printf("agent started (PID: %d)\n", pid)
	fmt.Printf("log file: %s\n", logFile)
	return nil
}

// childCommand builds the detached re-exec of this binary, forwarding any
// persistent flags from the parent invocation.
func childCommand(extraArgs []string) *exec.Cmd {
	args := append([]string{"agent", "run"}, extraArgs...)
	cmd := exec.Command(os.Args[0], args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd
}

// StopDaemon sends SIGTERM to the running agent and waits for exit.
func StopDaemon() error {
	running, pid, _, err := DaemonStatus()
	if err != nil {
		return err
	}
	if !running {
		return fmt.Errorf("agent is not running")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process: %w", err)
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone) {
			removePIDFile()
			return nil
		}
		return fmt.Errorf("sending SIGTERM: %w", err)
	}

	deadline := time.After(10 * time.Second)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			_ = proc.Signal(syscall.SIGKILL)
			removePIDFile()
			return fmt.Errorf("agent did not stop gracefully, sent SIGKILL")
		case <-ticker.C:
			if err := proc.Signal(syscall.Signal(0)); err != nil {
				removePIDFile()
				return nil
			}
		}
	}
}

// DaemonStatus reports whether the agent is running.
// Returns: running bool, pid int, uptime duration, error.
func DaemonStatus() (bool, int, time.Duration, error) {
	pidFile := PIDFilePath()
	data, err := os.ReadFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, 0, nil
		}
		return false, 0, 0, fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0, 0, fmt.Errorf("invalid PID file: %w", err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		removePIDFile()
		return false, 0, 0, nil
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		// Stale PID file.
		removePIDFile()
		return false, 0, 0, nil
	}

	info, err := os.Stat(pidFile)
	if err != nil {
		return true, pid, 0, nil
	}
	return true, pid, time.Since(info.ModTime()), nil
}

func writePIDFile(pid int) error {
	pidFile := PIDFilePath()
	if err := os.MkdirAll(filepath.Dir(pidFile), 0755); err != nil {
		return fmt.Errorf("creating PID directory: %w", err)
	}
	return store.AtomicWriteFile(pidFile, []byte(strconv.Itoa(pid)), 0644)
}

func removePIDFile() {
	_ = os.Remove(PIDFilePath())
}
