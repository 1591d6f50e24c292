package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/patchpilot/patchpilot/internal/config"
	"github.com/patchpilot/patchpilot/internal/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and edit the processed-issue state",
}

var stateYesFlag bool

func init() {
	stateClearCmd.Flags().BoolVar(&stateYesFlag, "yes", false, "Skip the confirmation prompt")
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateRmCmd)
	stateCmd.AddCommand(stateClearCmd)
	rootCmd.AddCommand(stateCmd)
}

// openState loads the state store without requiring a tracker credential;
// state commands are purely local.
func openState() (*state.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	st, err := state.Load(cfg.Agent.StateDir)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	return st, nil
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List processed issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openState()
		if err != nil {
			return err
		}

		issues := st.Issues()
		if len(issues) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no processed issues")
			return nil
		}

		headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
		cellStyle := lipgloss.NewStyle().Padding(0, 1)

		rows := make([][]string, 0, len(issues))
		for _, number := range issues {
			rec, ok := st.Get(number)
			if !ok {
				continue
			}
			rows = append(rows, []string{
				strconv.Itoa(number),
				rec.ProcessedAt.Local().Format(time.RFC3339),
				rec.PRURL,
			})
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("ISSUE", "PROCESSED AT", "PULL REQUEST").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})

		fmt.Fprintln(cmd.OutOrStdout(), t)
		if last := st.LastRun(); !last.IsZero() {
			fmt.Fprintf(cmd.OutOrStdout(), "last poll: %s\n", last.Local().Format(time.RFC3339))
		}
		return nil
	},
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <number>",
	Short: "Forget one processed issue",
	Long:  `Remove the dedup record for an issue so the next poll cycle retries it.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid issue number %q", args[0])
		}

		st, err := openState()
		if err != nil {
			return err
		}

		if err := st.Remove(number); err != nil {
			if errors.Is(err, state.ErrNotFound) {
				return fmt.Errorf("issue #%d is not in the processed set", number)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "issue #%d will be retried on the next poll\n", number)
		return nil
	},
}

var stateClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget all processed issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openState()
		if err != nil {
			return err
		}

		count := len(st.Issues())
		if count == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no processed issues")
			return nil
		}

		if !stateYesFlag {
			var confirmed bool
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewConfirm().
						Title(fmt.Sprintf("Forget all %d processed issues?", count)).
						Value(&confirmed),
				),
			)
			if err := form.Run(); err != nil {
				return fmt.Errorf("prompt cancelled: %w", err)
			}
			if !confirmed {
				fmt.Fprintln(cmd.OutOrStdout(), "aborted")
				return nil
			}
		}

		if err := st.Clear(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d records\n", count)
		return nil
	},
}
