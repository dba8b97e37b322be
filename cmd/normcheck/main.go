package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"normcheck/internal/logging"
)

var (
	// Global flags
	verbose bool
	timeout time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "normcheck",
	Short: "normcheck - bounded deontic model checker",
	Long: `normcheck evaluates deontic claims over a finite universe of worlds.

A model file declares sorts, predicates, prioritized norms, named worlds,
transitions, and claims. normcheck computes the admissible world set under
the norm priorities and reports which claims hold, searching for explicit
countermodels when they do not.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Operation timeout")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(enumerateCmd)
	rootCmd.AddCommand(countermodelCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
