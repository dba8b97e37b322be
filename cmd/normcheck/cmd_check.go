package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"normcheck/internal/engine"
	"normcheck/internal/modelfile"
)

// checkCmd evaluates every claim in a model file against its named worlds.
var checkCmd = &cobra.Command{
	Use:   "check [model.yaml]",
	Short: "Evaluate the claims in a model file",
	Long: `Loads a model file, computes the admissible set over its named worlds,
and evaluates each claim. Exits non-zero if any claim fails.

Example:
  normcheck check library.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	model, err := modelfile.Load(args[0])
	if err != nil {
		return err
	}
	failed, err := checkModel(ctx, cmd, model)
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d claims failed", failed, len(model.Claims))
	}
	return nil
}

// checkModel evaluates all claims and returns the number that failed.
func checkModel(ctx context.Context, cmd *cobra.Command, model *modelfile.Model) (int, error) {
	set := model.Registry.Snapshot()
	eval, err := engine.New(model.Schema, set, model.Store.Worlds(),
		engine.WithLogger(logger), engine.WithView(model.View()))
	if err != nil {
		return 0, err
	}
	queries, err := eval.Queries(ctx)
	if err != nil {
		return 0, err
	}
	report := queries.Report()

	logger.Info("admissible set computed",
		zap.Int("worlds", len(model.Store.Worlds())),
		zap.Int("admissible", len(report.Admissible)),
		zap.Strings("dropped_groups", report.DroppedGroups))
	for _, d := range report.Diagnostics {
		cmd.Printf("note: %s\n", d)
	}
	cmd.Printf("admissible: %d of %d worlds\n", len(report.Admissible), len(model.Store.Worlds()))
	for _, w := range report.Admissible {
		cmd.Printf("  %s\n", w.Name())
	}

	failed := 0
	for i, claim := range model.Claims {
		verdict, err := evalClaim(ctx, queries, report, model, claim)
		if err != nil {
			return failed, fmt.Errorf("claim %d (%s %s): %w", i, claim.Kind, claim.Source, err)
		}
		status := "FAIL"
		if verdict.Holds {
			status = "ok"
			if verdict.Vacuous {
				status = "ok (vacuous)"
			}
		} else {
			failed++
		}
		cmd.Printf("%-12s %s %s\n", status, claim.Kind, claim.Source)
		for _, d := range verdict.Diagnostics {
			cmd.Printf("             %s\n", d)
		}
	}
	return failed, nil
}

func evalClaim(ctx context.Context, queries *engine.QuerySet, report *engine.Report, model *modelfile.Model, claim modelfile.Claim) (engine.Verdict, error) {
	switch claim.Kind {
	case modelfile.ClaimObligatory:
		if claim.Condition != nil {
			return queries.ObligatoryGiven(claim.Formula, claim.Condition)
		}
		return queries.Obligatory(claim.Formula)
	case modelfile.ClaimForbidden:
		if claim.Condition != nil {
			return queries.ForbiddenGiven(claim.Formula, claim.Condition)
		}
		return queries.Forbidden(claim.Formula)
	case modelfile.ClaimPermitted:
		return queries.Permitted(claim.Formula)
	case modelfile.ClaimRequired:
		return queries.Required(ctx, claim.Formula, claim.NormID)
	case modelfile.ClaimActionSafe:
		return model.Relation.ActionSafe(claim.Action, claim.Formula, report, model.View())
	}
	return engine.Verdict{}, fmt.Errorf("unknown claim kind %q", claim.Kind)
}
