package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/flowctl/internal/app"
	"github.com/example/flowctl/internal/ports/primary"
	"github.com/example/flowctl/internal/wire"
)

var runCmd = &cobra.Command{
	Use:   "run [config]",
	Short: "Run an experiment",
	Long:  "Validate the experiment configuration and recipe, then execute every cycle on the configured flowcells",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		simulate, _ := cmd.Flags().GetBool("simulate")
		skipPrime, _ := cmd.Flags().GetBool("skip-prime")

		result, err := wire.RunService().Run(cmd.Context(), primary.RunRequest{
			ConfigPath: args[0],
			Simulate:   simulate,
			SkipPrime:  skipPrime,
		})

		var preflight *app.PreflightError
		if errors.As(err, &preflight) {
			printReport(&preflight.Report)
			return fmt.Errorf("experiment is not ready to run")
		}
		if result != nil {
			printResult(result)
		}
		if err != nil {
			return fmt.Errorf("run failed: %w", err)
		}
		return nil
	},
}

func printResult(result *primary.RunResult) {
	mark := color.New(color.FgGreen).Sprint("✓")
	if result.Status != "complete" {
		mark = color.New(color.FgRed).Sprint("✗")
	}
	fmt.Printf("%s Run %s %s\n", mark, result.RunID, result.Status)
	for fc, rows := range result.Histories {
		fmt.Printf("  Flowcell %s: %d history entries\n", fc, rows)
	}
}

func init() {
	runCmd.Flags().Bool("simulate", false, "Run against the simulated instrument")
	runCmd.Flags().Bool("skip-prime", false, "Skip the interactive line-priming prompt")
}

func RunCmd() *cobra.Command {
	return runCmd
}
