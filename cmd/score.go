package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/builder-radar/internal/model"
)

var scoreID int64

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score one stored opportunity unless it already has a score",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "score")
		if err != nil {
			return err
		}
		defer env.Close()

		result, runErr := scoreOne(ctx, env, scoreID)
		if err := writeResult(cmd.OutOrStdout(), result); err != nil {
			return err
		}
		return runErr
	},
}

// scoreResult reports a single-opportunity scoring request.
type scoreResult struct {
	Success bool        `json:"success"`
	ID      int64       `json:"id"`
	Skipped bool        `json:"skipped"`
	Score   model.Score `json:"score,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// scoreOne loads id and runs the scorer on it. An already-scored row is
// reported as skipped with its stored score.
func scoreOne(ctx context.Context, env *appEnv, id int64) (*scoreResult, error) {
	res := &scoreResult{ID: id}
	if env.Scorer == nil {
		err := eris.New("score: llm provider not configured")
		res.Error = err.Error()
		return res, err
	}

	opp, err := env.Store.Get(ctx, id)
	if err != nil {
		res.Error = err.Error()
		return res, err
	}

	score, err := env.Scorer.Run(ctx, *opp)
	if err != nil {
		res.Error = err.Error()
		return res, err
	}

	res.Success = true
	if score == nil {
		res.Skipped = true
		res.Score = opp.Score
		return res, nil
	}
	res.Score = score
	return res, nil
}

func init() {
	scoreCmd.Flags().Int64Var(&scoreID, "id", 0, "opportunity id to score")
	_ = scoreCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(scoreCmd)
}
