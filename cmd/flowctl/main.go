package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/flowctl/internal/cli"
	"github.com/example/flowctl/internal/db"
	"github.com/example/flowctl/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "flowctl",
		Short:   "flowctl - recipe-driven flowcell orchestration",
		Version: version.String(),
		Long: `flowctl runs imaging experiments on a two-flowcell instrument.
It validates a recipe against the reagent configuration, executes it
cycle by cycle on each flowcell, and keeps a durable run history.`,
	}

	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.ValidateCmd())
	rootCmd.AddCommand(cli.PrimeCmd())
	rootCmd.AddCommand(cli.HistoryCmd())

	// Ctrl-C cancels the run; shutdown and history persistence still
	// complete before exit.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer db.Close()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
