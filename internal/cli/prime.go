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

var primeCmd = &cobra.Command{
	Use:   "prime [config]",
	Short: "Flush reagent lines without running the recipe",
	Long:  "Validate the experiment, then push flush buffer through every fixed reagent port on every configured flowcell",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		simulate, _ := cmd.Flags().GetBool("simulate")

		err := wire.RunService().Prime(cmd.Context(), primary.RunRequest{
			ConfigPath: args[0],
			Simulate:   simulate,
		})

		var preflight *app.PreflightError
		if errors.As(err, &preflight) {
			printReport(&preflight.Report)
			return fmt.Errorf("experiment is not ready to run")
		}
		if err != nil {
			return fmt.Errorf("prime failed: %w", err)
		}
		fmt.Printf("%s Lines primed\n", color.New(color.FgGreen).Sprint("✓"))
		return nil
	},
}

func init() {
	primeCmd.Flags().Bool("simulate", false, "Run against the simulated instrument")
}

func PrimeCmd() *cobra.Command {
	return primeCmd
}
