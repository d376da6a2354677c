package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/reelrank/internal/cli"
	"github.com/hyperjump/reelrank/internal/config"
	"github.com/hyperjump/reelrank/internal/recommend"
	"github.com/hyperjump/reelrank/internal/storage"
)

var (
	forceInit     bool
	statusKeyword bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog, index and disk usage",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var removeCmd = &cobra.Command{
	Use:   "remove <movie-id>...",
	Short: "Remove movies from recommendations",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemove,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "reelrank version %s\n", Version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with default values",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

func init() {
	statusCmd.Flags().BoolVar(&statusKeyword, "keyword-index", false, "also count keyword index documents (the server must be stopped)")
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(statusCmd, removeCmd, versionCmd, configCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := commandContext(cmd)
	components, err := initializeComponents(ctx, cfg, logger, componentOptions{keyword: statusKeyword})
	if err != nil {
		return err
	}
	defer components.Close()

	report := cli.StatusReport{
		Engine:      components.Engine.Stats(),
		EmbeddingBy: cfg.Embedding.Provider,
	}
	if report.CatalogCount, err = components.Storage.CountMovies(ctx); err != nil {
		return err
	}
	if components.Keyword != nil {
		if report.KeywordDocs, err = components.Keyword.DocCount(); err != nil {
			return err
		}
	}
	if report.Footprint, err = storage.MeasureFootprint(cfg.Storage.DatabasePath, cfg.Storage.SnapshotPath()); err != nil {
		logger.Warn("disk usage unavailable", zap.Error(err))
	}
	return cli.WriteStatus(cmd.OutOrStdout(), report, outputFormat())
}

// parseMovieIDs parses positional movie ids.
func parseMovieIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid movie id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	ids, err := parseMovieIDs(args)
	if err != nil {
		return err
	}
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

	n, err := components.Indexer.RemoveMovies(ctx, ids)
	if err != nil && !errors.Is(err, recommend.ErrPersistence) {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d of %d movies\n", n, len(ids))
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
