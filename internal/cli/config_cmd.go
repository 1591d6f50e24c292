package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/patchpilot/patchpilot/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage patchpilot configuration",
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show merged configuration",
	Long: `Print the effective configuration after merging defaults, the user
config file, the repo config file, and environment overrides. The
tracker token is never printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("%w: %v", errConfig, err)
		}

		// Token carries yaml:"-" and is omitted here.
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}
