package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/patchpilot/patchpilot/internal/agent"
	"github.com/patchpilot/patchpilot/internal/config"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage the background agent",
	Long:  `Start, stop, and inspect the issue-polling agent.`,
}

var foregroundFlag bool

func init() {
	agentCmd.AddCommand(agentStartCmd)
	agentCmd.AddCommand(agentRunCmd)
	agentCmd.AddCommand(agentStopCmd)
	agentCmd.AddCommand(agentStatusCmd)

	agentStartCmd.Flags().BoolVar(&foregroundFlag, "foreground", false, "Run in foreground (don't daemonize)")

	rootCmd.AddCommand(agentCmd)
}

var agentStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadValidatedConfig()
		if err != nil {
			return err
		}
		return agent.StartDaemon(foregroundFlag, persistentArgs(), func(ctx context.Context) error {
			return runAgent(ctx, cfg)
		})
	},
}

var agentRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadValidatedConfig()
		if err != nil {
			return err
		}
		return agent.StartDaemon(true, nil, func(ctx context.Context) error {
			return runAgent(ctx, cfg)
		})
	},
}

// persistentArgs re-derives the persistent flags a detached agent child
// must inherit from this invocation.
func persistentArgs() []string {
	if verbose {
		return []string{"--verbose"}
	}
	return nil
}

func runAgent(ctx context.Context, cfg *config.Config) error {
	pipe, trk, st, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	loop := agent.NewLoop(cfg, trk, pipe, st)
	return loop.Run(ctx)
}

var agentStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := agent.StopDaemon(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "agent stopped")
		return nil
	},
}

var agentStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent status",
	RunE: func(cmd *cobra.Command, args []string) error {
		running, pid, uptime, err := agent.DaemonStatus()
		if err != nil {
			return err
		}
		if running {
			fmt.Fprintf(cmd.OutOrStdout(), "agent is running (PID %d, uptime %s)\n", pid, uptime.Round(time.Second))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "agent is not running")
		}
		return nil
	},
}
