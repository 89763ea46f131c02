package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/flowctl/internal/wire"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect past runs",
	Long:  "List past experiment runs and show their per-flowcell instruction history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := wire.HistoryService().ListRuns(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		if len(runs) == 0 {
			fmt.Println("No runs found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCYCLES\tFLOWCELLS\tSTATUS\tSTARTED\tCOMPLETED")
		fmt.Fprintln(w, "--\t----\t------\t---------\t------\t-------\t---------")
		for _, run := range runs {
			completed := "-"
			if run.CompletedAt != "" {
				completed = run.CompletedAt
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
				run.ID,
				run.Name,
				run.Cycles,
				run.Flowcells,
				run.Status,
				run.StartedAt,
				completed,
			)
		}
		w.Flush()
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show a run's flowcell history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flowcell, _ := cmd.Flags().GetString("flowcell")

		rows, err := wire.HistoryService().RunHistory(cmd.Context(), args[0], flowcell)
		if err != nil {
			return fmt.Errorf("failed to read run history: %w", err)
		}

		if len(rows) == 0 {
			fmt.Println("No history found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FLOWCELL\tSEQ\tCYCLE\tOPCODE\tOPERAND\tAT")
		fmt.Fprintln(w, "--------\t---\t-----\t------\t-------\t--")
		for _, row := range rows {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n",
				row.Flowcell,
				row.Seq,
				row.Cycle,
				row.Op,
				row.Operand,
				row.Timestamp.Format("2006-01-02 15:04:05"),
			)
		}
		w.Flush()
		return nil
	},
}

func init() {
	historyListCmd.Flags().IntP("limit", "n", 20, "Maximum runs to list")
	historyShowCmd.Flags().StringP("flowcell", "f", "", "Filter to one flowcell position (A or B)")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
}

func HistoryCmd() *cobra.Command {
	return historyCmd
}
