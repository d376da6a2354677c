package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/reelrank/internal/cli"
	"github.com/hyperjump/reelrank/internal/indexer"
	"github.com/hyperjump/reelrank/internal/recommend"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|dir>...",
	Short: "Load movie catalog files into the catalog and the vector index",
	Long: `Ingest reads CSV, JSON and Excel catalog files and adds their movies to
the catalog database, the keyword index and the vector index.

Directories are walked recursively. Files whose content has not changed
since the last ingest in this process are skipped.

Stop a running server first: the keyword index is opened exclusively.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := commandContext(cmd)
	components, err := initializeComponents(ctx, cfg, logger, componentOptions{keyword: true})
	if err != nil {
		return err
	}
	defer components.Close()

	results, err := ingestPaths(ctx, components.Indexer, args, logger)
	if werr := cli.WriteIngestResults(cmd.OutOrStdout(), results, outputFormat()); werr != nil && err == nil {
		err = werr
	}
	return err
}

// ingestPaths ingests every path in order. A snapshot failure is reported
// per file and does not stop the run; any other error does.
func ingestPaths(ctx context.Context, idx *indexer.Indexer, paths []string, logger *zap.Logger) ([]*indexer.FileResult, error) {
	var results []*indexer.FileResult
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return results, fmt.Errorf("cannot ingest %s: %w", p, err)
		}
		if info.IsDir() {
			dirResults, err := idx.IngestDirectory(ctx, p)
			results = append(results, dirResults...)
			if err != nil && !errors.Is(err, recommend.ErrPersistence) {
				return results, err
			}
			continue
		}
		res, err := idx.IngestFile(ctx, p)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			if !errors.Is(err, recommend.ErrPersistence) {
				return results, err
			}
			logger.Warn("snapshot not persisted", zap.String("path", p), zap.Error(err))
		}
	}
	return results, nil
}
