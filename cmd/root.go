package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/regiodata/event-dedup/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "eventdedup",
	Short: "Regional event deduplication engine",
	Long:  "Merges event records from newspaper articles and listing feeds into canonical events: blocking, multi-signal scoring, graph clustering, AI-assisted resolution of ambiguous pairs.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
