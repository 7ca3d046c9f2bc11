package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	usageBatchID string
	usageDays    int
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show AI usage and cost summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if usageBatchID != "" {
			summary, err := env.Store.BatchUsageSummary(ctx, usageBatchID)
			if err != nil {
				return err
			}
			zap.L().Info("batch usage",
				zap.String("batch_id", usageBatchID),
				zap.Int("total_requests", summary.TotalRequests),
				zap.Int("api_requests", summary.APIRequests),
				zap.Int("cache_hits", summary.CachedRequests),
				zap.Int64("total_tokens", summary.TotalTokens),
				zap.Float64("estimated_cost_usd", summary.EstimatedCostUSD),
			)
			return nil
		}

		to := time.Now().UTC()
		from := to.AddDate(0, 0, -usageDays)
		summary, err := env.Store.PeriodUsageSummary(ctx, from, to)
		if err != nil {
			return err
		}
		zap.L().Info("period usage",
			zap.Int("days", usageDays),
			zap.Int("batches", summary.BatchCount),
			zap.Int("total_requests", summary.TotalRequests),
			zap.Int("api_requests", summary.APIRequests),
			zap.Int("cache_hits", summary.CachedRequests),
			zap.Int64("total_tokens", summary.TotalTokens),
			zap.Float64("estimated_cost_usd", summary.EstimatedCostUSD),
		)
		return nil
	},
}

func init() {
	usageCmd.Flags().StringVar(&usageBatchID, "batch", "", "show a single resolver batch")
	usageCmd.Flags().IntVar(&usageDays, "days", 30, "period length in days")
	rootCmd.AddCommand(usageCmd)
}
