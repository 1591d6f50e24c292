package config

import "time"

// Config is the top-level patchpilot configuration. It is constructed once
// at startup and passed by reference to every component; nothing else reads
// config files or environment variables after Load returns.
type Config struct {
	Repo   RepoConfig   `yaml:"repo"`
	Model  ModelConfig  `yaml:"model"`
	Agent  AgentConfig  `yaml:"agent"`
	Git    GitConfig    `yaml:"git"`
	Github GithubConfig `yaml:"github"`
}

// RepoConfig identifies the repository the agent works on.
type RepoConfig struct {
	Owner      string `yaml:"owner"`
	Name       string `yaml:"name"`
	BaseBranch string `yaml:"base_branch"`
	// WorkDir is the local checkout the agent mutates. Required.
	WorkDir string `yaml:"work_dir"`
}

// ModelConfig controls the local model endpoint.
type ModelConfig struct {
	URL     string         `yaml:"url"`
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options"`
	// Timeout bounds a single generation call. Local large models are slow;
	// the default is deliberately generous.
	Timeout string `yaml:"timeout"`
}

// ParseTimeout returns the model call timeout as a time.Duration.
func (m ModelConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(m.Timeout)
	if err != nil {
		return 20 * time.Minute
	}
	return d
}

// AgentConfig holds poll loop settings.
type AgentConfig struct {
	Label        string `yaml:"label"`
	PollInterval string `yaml:"poll_interval"`
	StateDir     string `yaml:"state_dir"`
	LogDir       string `yaml:"log_dir"`
}

// ParsePollInterval returns the poll interval as a time.Duration.
func (a AgentConfig) ParsePollInterval() time.Duration {
	d, err := time.ParseDuration(a.PollInterval)
	if err != nil {
		return time.Minute
	}
	return d
}

// GitConfig holds the bot commit identity.
type GitConfig struct {
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// GithubConfig holds tracker credentials and call bounds.
type GithubConfig struct {
	// Token is never read from config files; Load fills it from GITHUB_TOKEN.
	Token string `yaml:"-"`
	// APITimeout bounds individual tracker calls (list/get/comment).
	APITimeout string `yaml:"api_timeout"`
	// PushTimeout bounds push and PR creation.
	PushTimeout string `yaml:"push_timeout"`
}

// ParseAPITimeout returns the tracker call timeout.
func (g GithubConfig) ParseAPITimeout() time.Duration {
	d, err := time.ParseDuration(g.APITimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ParsePushTimeout returns the push/PR call timeout.
func (g GithubConfig) ParsePushTimeout() time.Duration {
	d, err := time.ParseDuration(g.PushTimeout)
	if err != nil {
		return 3 * time.Minute
	}
	return d
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Repo: RepoConfig{
			BaseBranch: "main",
		},
		Model: ModelConfig{
			URL:  "http://localhost:11434",
			Name: "qwen2.5-coder:32b",
			Options: map[string]any{
				"temperature": 0.2,
			},
			Timeout: "20m",
		},
		Agent: AgentConfig{
			Label:        "patchpilot",
			PollInterval: "60s",
		},
		Git: GitConfig{
			AuthorName:  "patchpilot",
			AuthorEmail: "patchpilot[bot]@users.noreply.github.com",
		},
		Github: GithubConfig{
			APITimeout:  "30s",
			PushTimeout: "3m",
		},
	}
}
