package main

import (
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/regiodata/event-dedup/internal/ingest"
)

var importRun bool

var importCmd = &cobra.Command{
	Use:   "import <file-or-glob>...",
	Short: "Import event JSON files into the store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var paths []string
		for _, arg := range args {
			matches, err := filepath.Glob(arg)
			if err != nil {
				return eris.Wrapf(err, "bad pattern %q", arg)
			}
			if len(matches) == 0 {
				zap.L().Warn("pattern matched no files", zap.String("pattern", arg))
			}
			paths = append(paths, matches...)
		}
		sort.Strings(paths)

		total := 0
		for _, path := range paths {
			events, err := ingest.LoadFile(path)
			if err != nil {
				return err
			}
			n, err := env.Store.UpsertSourceEvents(ctx, events)
			if err != nil {
				return err
			}
			zap.L().Info("file imported",
				zap.String("file", filepath.Base(path)),
				zap.Int("events", n),
			)
			total += n
		}
		zap.L().Info("import complete", zap.Int("files", len(paths)), zap.Int("events", total))

		if importRun && total > 0 {
			result, err := env.Pipeline.Run(ctx)
			if err != nil {
				return err
			}
			zap.L().Info("pipeline run after import",
				zap.Int("canonicals", result.CanonicalCount),
				zap.Int("flagged_for_review", result.FlaggedCount),
			)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importRun, "run", false, "run the dedup pipeline after importing")
	rootCmd.AddCommand(importCmd)
}
