package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"normcheck/internal/domain"
	"normcheck/internal/engine"
	"normcheck/internal/modelfile"
)

var enumerateMaxWorlds int

// enumerateCmd walks the full bounded universe of a model's schema.
var enumerateCmd = &cobra.Command{
	Use:   "enumerate [model.yaml]",
	Short: "Enumerate the bounded universe and report admissibility",
	Long: `Generates every possible world over the model's schema, using the
attribute values pinned in the first named world, and reports how many
are admissible under the norm priorities.

Example:
  normcheck enumerate library.yaml --max-worlds 4096`,
	Args: cobra.ExactArgs(1),
	RunE: runEnumerate,
}

func init() {
	enumerateCmd.Flags().IntVar(&enumerateMaxWorlds, "max-worlds", 0, "Stop after this many worlds (0 = unbounded)")
}

func runEnumerate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	model, err := modelfile.Load(args[0])
	if err != nil {
		return err
	}

	if count, ok := model.Schema.WorldCount(); ok {
		cmd.Printf("universe size: %d worlds\n", count)
	} else {
		cmd.Println("universe size: over 2^63 worlds")
	}

	var worlds []*domain.World
	truncated := false
	err = model.Store.Enumerate(ctx, nil, pinnedAttrs(model), func(w *domain.World) error {
		if enumerateMaxWorlds > 0 && len(worlds) >= enumerateMaxWorlds {
			truncated = true
			return domain.ErrStopEnumeration
		}
		worlds = append(worlds, w)
		return nil
	})
	if err != nil {
		return err
	}

	eval, err := engine.New(model.Schema, model.Registry.Snapshot(), worlds,
		engine.WithLogger(logger), engine.WithView(model.View()))
	if err != nil {
		return err
	}
	report, err := eval.AdmissibleSet(ctx)
	if err != nil {
		return err
	}

	logger.Info("enumeration finished",
		zap.Int("explored", len(worlds)),
		zap.Int("admissible", len(report.Admissible)),
		zap.Bool("truncated", truncated))
	cmd.Printf("explored:   %d worlds", len(worlds))
	if truncated {
		cmd.Printf(" (truncated at --max-worlds)")
	}
	cmd.Println()
	cmd.Printf("admissible: %d worlds\n", len(report.Admissible))
	if truncated {
		cmd.Println("result: inconclusive (universe not fully explored)")
	}
	for _, d := range report.Diagnostics {
		cmd.Printf("note: %s\n", d)
	}
	return nil
}

// pinnedAttrs lifts the attribute assignments of the first named world into
// fixed values for enumeration. Attributes range over unbounded integers,
// so enumeration needs them pinned to stay finite.
func pinnedAttrs(model *modelfile.Model) []domain.FixedAttr {
	worlds := model.Store.Worlds()
	if len(worlds) == 0 {
		return nil
	}
	return worlds[0].FixedAttrs(model.Schema)
}
