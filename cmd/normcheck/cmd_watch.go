package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"normcheck/internal/modelfile"
	"normcheck/internal/watch"
)

// watchCmd re-checks a model file whenever it changes on disk.
var watchCmd = &cobra.Command{
	Use:   "watch [model.yaml]",
	Short: "Re-check a model file on every change",
	Long: `Runs check once, then watches the model file and re-runs the check
after each save. Stops on Ctrl-C.

Example:
  normcheck watch library.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	path := args[0]

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

	recheck := func(ctx context.Context) {
		runCtx, done := context.WithTimeout(ctx, timeout)
		defer done()

		model, err := modelfile.Load(path)
		if err != nil {
			cmd.PrintErrf("reload failed: %v\n", err)
			return
		}
		failed, err := checkModel(runCtx, cmd, model)
		if err != nil {
			cmd.PrintErrf("check failed: %v\n", err)
			return
		}
		if failed > 0 {
			cmd.Printf("%d of %d claims failed\n", failed, len(model.Claims))
		}
		logger.Info("model re-checked", zap.String("path", path), zap.Int("failed", failed))
	}

	recheck(ctx)

	watcher, err := watch.New(path, logger, recheck)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	<-ctx.Done()
	return nil
}
