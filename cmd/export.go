package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/regiodata/event-dedup/internal/export"
)

var (
	exportDir    string
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export canonical events as chunked JSON or XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		canonicals, err := env.Store.ListCanonicalEvents(ctx)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(exportDir, 0o755); err != nil {
			return eris.Wrapf(err, "create export dir %s", exportDir)
		}

		switch exportFormat {
		case "json":
			chunks, err := export.ChunkJSON(canonicals, export.ChunkSize, time.Now())
			if err != nil {
				return err
			}
			for _, chunk := range chunks {
				path := filepath.Join(exportDir, chunk.Filename)
				if err := os.WriteFile(path, chunk.Content, 0o644); err != nil {
					return eris.Wrapf(err, "write %s", path)
				}
			}
			zap.L().Info("json export complete",
				zap.Int("events", len(canonicals)),
				zap.Int("files", len(chunks)),
			)
		case "xlsx":
			path := filepath.Join(exportDir,
				"canonical_"+time.Now().UTC().Format("2006-01-02T15-04")+".xlsx")
			if err := export.WriteXLSX(canonicals, path); err != nil {
				return err
			}
			zap.L().Info("xlsx export complete",
				zap.Int("events", len(canonicals)),
				zap.String("file", path),
			)
		default:
			return eris.Errorf("unknown export format %q (json or xlsx)", exportFormat)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "dir", "export", "output directory")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "export format: json or xlsx")
	rootCmd.AddCommand(exportCmd)
}
