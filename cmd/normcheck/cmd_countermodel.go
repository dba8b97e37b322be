package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"normcheck/internal/modelfile"
	"normcheck/internal/search"
)

var countermodelMaxWorlds int

// countermodelCmd searches the bounded universe for an admissible world
// falsifying a claim.
var countermodelCmd = &cobra.Command{
	Use:   "countermodel [model.yaml] [formula]",
	Short: "Search for an admissible world where a formula fails",
	Long: `Enumerates worlds over the model's schema and looks for one that is
admissible under the norm priorities but falsifies the formula. A bounded
search that finds nothing within budget reports "inconclusive", never
"not found".

Example:
  normcheck countermodel library.yaml "overdue(b1) -> !borrowed(b1,u1)"`,
	Args: cobra.ExactArgs(2),
	RunE: runCountermodel,
}

func init() {
	countermodelCmd.Flags().IntVar(&countermodelMaxWorlds, "max-worlds", 0, "Stop enumerating after this many worlds (0 = unbounded)")
}

func runCountermodel(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	model, err := modelfile.Load(args[0])
	if err != nil {
		return err
	}
	claim, err := modelfile.CompileExpr(model.Schema, args[1])
	if err != nil {
		return err
	}

	finder := search.NewFinder(model.Store, model.Registry.Snapshot(), nil, nil,
		search.WithLogger(logger), search.WithView(model.View()))
	outcome, err := finder.FindCountermodel(ctx, claim, search.Budget{
		MaxWorlds: countermodelMaxWorlds,
		Timeout:   timeout,
	})
	if err != nil {
		return err
	}

	logger.Info("search finished",
		zap.Stringer("result", outcome.Result),
		zap.Int("explored", outcome.Explored))
	cmd.Printf("result:   %s\n", outcome.Result)
	cmd.Printf("explored: %d worlds\n", outcome.Explored)
	for _, d := range outcome.Diagnostics {
		cmd.Printf("note: %s\n", d)
	}
	if outcome.World != nil {
		cmd.Println("countermodel:")
		for _, atom := range outcome.World.TrueAtoms(model.Schema) {
			cmd.Printf("  %s\n", atom)
		}
	}
	return nil
}
