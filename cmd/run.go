package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full dedup pipeline over all stored events",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("run finished",
			zap.Int("total_events", result.TotalEvents),
			zap.Int("blocked_pairs", result.PairStats.BlockedPairs),
			zap.Int("matches", result.MatchCount),
			zap.Int("ambiguous", result.AmbiguousCount),
			zap.Int("canonicals", result.CanonicalCount),
			zap.Int("flagged_for_review", result.FlaggedCount),
			zap.Int("enriched", result.EnrichedCount),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
