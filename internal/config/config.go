package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ErrMissingToken indicates no credential was provided. The CLI maps this to
// its own exit code, distinct from other configuration errors.
var ErrMissingToken = errors.New("GITHUB_TOKEN is not set")

// Load reads and merges configuration from user-level and repo-level YAML
// files. Resolution order: defaults → user config
// (~/.config/patchpilot/patchpilot.yaml) → repo config (.patchpilot.yaml at
// the work tree root) → environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	userDir, err := os.UserConfigDir()
	if err == nil {
		userPath := filepath.Join(userDir, "patchpilot", "patchpilot.yaml")
		if userMap, err := loadYAML(userPath); err == nil {
			if err := mergeIntoConfig(&cfg, userMap); err != nil {
				return nil, fmt.Errorf("merging user config: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	repoRoot := cfg.Repo.WorkDir
	if repoRoot == "" {
		repoRoot = findRepoRoot()
	}
	if repoRoot != "" {
		repoPath := filepath.Join(repoRoot, ".patchpilot.yaml")
		if repoMap, err := loadYAML(repoPath); err == nil {
			if err := mergeIntoConfig(&cfg, repoMap); err != nil {
				return nil, fmt.Errorf("merging repo config: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading repo config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Agent.StateDir == "" {
		cfg.Agent.StateDir = DefaultStateDir()
	}

	return &cfg, nil
}

// Validate checks that the configuration is complete enough to run the
// agent. Token absence is reported as ErrMissingToken so the caller can
// exit with a distinct code.
func (c *Config) Validate() error {
	if c.Repo.Owner == "" || c.Repo.Name == "" {
		return fmt.Errorf("repo.owner and repo.name must be configured")
	}
	if c.Repo.WorkDir == "" {
		return fmt.Errorf("repo.work_dir must be configured")
	}
	if info, err := os.Stat(c.Repo.WorkDir); err != nil || !info.IsDir() {
		return fmt.Errorf("repo.work_dir %q is not a directory", c.Repo.WorkDir)
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name must be configured")
	}
	if c.Github.Token == "" {
		return ErrMissingToken
	}
	return nil
}

// DefaultStateDir returns the agent state directory under XDG data home.
func DefaultStateDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return filepath.Join(os.TempDir(), "patchpilot")
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "patchpilot")
}

// loadYAML reads a YAML file and returns it as a map.
func loadYAML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, nil
}

// mergeIntoConfig marshals the config to a map, deep-merges the source map
// over it, then unmarshals back to the Config struct.
func mergeIntoConfig(cfg *Config, src map[string]any) error {
	cfgBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var dst map[string]any
	if err := yaml.Unmarshal(cfgBytes, &dst); err != nil {
		return err
	}

	if err := mergo.Merge(&dst, src, mergo.WithOverride); err != nil {
		return err
	}

	merged, err := yaml.Marshal(dst)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(merged, cfg)
}

// findRepoRoot finds the git repository root via git rev-parse.
func findRepoRoot() string {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		cfg.Github.Token = token
	}
	if url := os.Getenv("PATCHPILOT_MODEL_URL"); url != "" {
		cfg.Model.URL = url
	}
	if dir := os.Getenv("PATCHPILOT_STATE_DIR"); dir != "" {
		cfg.Agent.StateDir = dir
	}
}
