package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/patchpilot/patchpilot/internal/config"
	"github.com/patchpilot/patchpilot/internal/pipeline"
	"github.com/patchpilot/patchpilot/internal/state"
	"github.com/patchpilot/patchpilot/internal/tracker"
)

// IssueProcessor runs the full fix attempt for one issue.
type IssueProcessor interface {
	Process(ctx context.Context, issue tracker.Issue) (*pipeline.Result, error)
}

// Loop polls the tracker for labeled issues and hands each unprocessed one
// to the processor, one at a time.
type Loop struct {
	cfg   *config.Config
	trk   tracker.Tracker
	proc  IssueProcessor
	store *state.Store

	// Pause after a failed attempt before moving to the next issue, so a
	// misbehaving model endpoint doesn't get hammered in a tight loop.
	failurePause time.Duration
}

// NewLoop builds a poll loop with the default failure pause.
func NewLoop(cfg *config.Config, trk tracker.Tracker, proc IssueProcessor, st *state.Store) *Loop {
	return &Loop{
		cfg:          cfg,
		trk:          trk,
		proc:         proc,
		store:        st,
		failurePause: 5 * time.Second,
	}
}

// Run polls until the context is cancelled. The first poll happens
// immediately; subsequent polls follow the configured interval.
func (l *Loop) Run(ctx context.Context) error {
	interval := l.cfg.Agent.ParsePollInterval()
	slog.Info("starting issue poll loop",
		"repo", l.cfg.Repo.Owner+"/"+l.cfg.Repo.Name,
		"label", l.cfg.Agent.Label,
		"interval", interval)

	l.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poll loop stopped")
			l.flush()
			return nil
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick runs one poll cycle: list labeled issues, process each new one in
// order. A failed attempt is logged and the loop moves on; the issue stays
// unprocessed and is retried on a later tick.
func (l *Loop) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	issues, err := l.trk.ListOpenIssues(ctx, l.cfg.Agent.Label)
	if err != nil {
		slog.Error("listing issues failed", "error", err)
		l.flush()
		return
	}
	slog.Debug("poll cycle", "open_issues", len(issues))

	for _, issue := range issues {
		if ctx.Err() != nil {
			return
		}
		if l.store.IsProcessed(issue.Number) {
			continue
		}

		res, err := l.proc.Process(ctx, issue)
		if err != nil {
			slog.Error("issue attempt failed", "issue", issue.Number, "step", res.Step, "error", err)
			l.pause(ctx)
			continue
		}
		slog.Info("issue attempt finished", "issue", issue.Number, "pr", res.PRURL)
	}

	l.flush()
}

func (l *Loop) flush() {
	l.store.TouchLastRun()
	if err := l.store.Flush(); err != nil {
		slog.Error("flushing state failed", "error", err)
	}
}

func (l *Loop) pause(ctx context.Context) {
	if l.failurePause <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(l.failurePause):
	}
}
