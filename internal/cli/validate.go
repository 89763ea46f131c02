package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/flowctl/internal/ports/primary"
	"github.com/example/flowctl/internal/wire"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config]",
	Short: "Validate an experiment without touching the instrument",
	Long:  "Check the recipe instructions, reagent ports, and method parameters, reporting every violation found",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := wire.RunService().Validate(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("validation could not run: %w", err)
		}

		printReport(report)
		if !report.Valid() {
			return fmt.Errorf("experiment is not ready to run")
		}
		return nil
	},
}

func printReport(report *primary.ValidationReport) {
	if report.Valid() {
		fmt.Printf("%s Experiment is ready to run\n", color.New(color.FgGreen).Sprint("✓"))
	} else {
		fmt.Printf("%s %d violation(s) found:\n", color.New(color.FgRed).Sprint("✗"), len(report.Violations))
		for _, v := range report.Violations {
			fmt.Printf("  %s %s\n", color.New(color.FgRed).Sprint("-"), v)
		}
	}

	fmt.Printf("  Flowcells: %s\n", strings.Join(report.Flowcells, ", "))
	fmt.Printf("  First cycle starts at line %d\n", report.ResumeLine)
	if len(report.StopLines) > 0 {
		stops := make([]string, len(report.StopLines))
		for i, line := range report.StopLines {
			stops[i] = fmt.Sprint(line)
		}
		fmt.Printf("  %s Recipe pauses for the operator at line(s) %s\n",
			color.New(color.FgYellow).Sprint("!"), strings.Join(stops, ", "))
	}
}

func ValidateCmd() *cobra.Command {
	return validateCmd
}
