package cli

import (
	"fmt"
	"path/filepath"

	"github.com/patchpilot/patchpilot/internal/config"
	"github.com/patchpilot/patchpilot/internal/gitx"
	"github.com/patchpilot/patchpilot/internal/llm"
	"github.com/patchpilot/patchpilot/internal/pipeline"
	"github.com/patchpilot/patchpilot/internal/preflight"
	"github.com/patchpilot/patchpilot/internal/state"
	"github.com/patchpilot/patchpilot/internal/tracker"
	ghtracker "github.com/patchpilot/patchpilot/internal/tracker/github"
)

// buildComponents wires the pipeline and its collaborators from config.
func buildComponents(cfg *config.Config) (*pipeline.Pipeline, tracker.Tracker, *state.Store, error) {
	st, err := state.Load(cfg.Agent.StateDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading state: %w", err)
	}

	trk := ghtracker.NewBackend(cfg.Repo.Owner, cfg.Repo.Name, cfg.Github.Token,
		ghtracker.WithTimeouts(cfg.Github.ParseAPITimeout(), cfg.Github.ParsePushTimeout()))

	model := llm.NewOllamaClient(cfg.Model.URL, cfg.Model.ParseTimeout())

	wt := gitx.NewWorktree(cfg.Repo.WorkDir, cfg.Git.AuthorName, cfg.Git.AuthorEmail,
		filepath.Join(cfg.Agent.StateDir, "scratch"))

	pipe := pipeline.New(cfg, trk, model, wt, preflight.NewRunner(), st)
	return pipe, trk, st, nil
}
