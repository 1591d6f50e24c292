package cli

import (
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/patchpilot/patchpilot/internal/state"
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Work with individual issues",
}

var forceFlag bool

func init() {
	issueProcessCmd.Flags().BoolVar(&forceFlag, "force", false, "Reprocess even if the issue was already handled")
	issueCmd.AddCommand(issueProcessCmd)
	rootCmd.AddCommand(issueCmd)
}

var issueProcessCmd = &cobra.Command{
	Use:   "process <number>",
	Short: "Run a single fix attempt for one issue",
	Long: `Fetch the given issue and run the full fix attempt for it once,
without starting the poll loop. With --force a previous attempt's
dedup record is discarded first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid issue number %q", args[0])
		}

		cfg, err := loadValidatedConfig()
		if err != nil {
			return err
		}
		pipe, trk, st, err := buildComponents(cfg)
		if err != nil {
			return err
		}

		if forceFlag {
			if err := st.Remove(number); err != nil && !errors.Is(err, state.ErrNotFound) {
				return fmt.Errorf("clearing previous record: %w", err)
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		issue, err := trk.GetIssue(ctx, number)
		if err != nil {
			return fmt.Errorf("fetching issue: %w", err)
		}

		res, err := pipe.Process(ctx, *issue)
		if err != nil {
			return err
		}

		if res.PRURL != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "opened %s\n", res.PRURL)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "issue #%d already processed (use --force to retry)\n", number)
		}
		return nil
	},
}
