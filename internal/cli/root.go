package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patchpilot/patchpilot/internal/config"
	"github.com/patchpilot/patchpilot/internal/logging"
)

var (
	verbose bool
	rootCmd = &cobra.Command{
		Use:   "patchpilot",
		Short: "Issue-to-PR agent backed by a locally hosted model",
		Long:  `Patchpilot watches a repository for labeled issues, asks a locally hosted model for a fix, and opens a pull request with the resulting patch.`,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logging.Setup(verbose)
	}
}

func Execute() error {
	return rootCmd.Execute()
}

// errConfig marks configuration problems other than a missing token.
var errConfig = errors.New("configuration error")

// ExitCode maps an Execute error to the process exit code: 2 for bad
// configuration, 3 for a missing credential, 1 for everything else.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, config.ErrMissingToken):
		return 3
	case errors.Is(err, errConfig):
		return 2
	default:
		return 1
	}
}

// loadValidatedConfig loads the merged configuration and validates it for
// running the agent.
func loadValidatedConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrMissingToken) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	return cfg, nil
}
