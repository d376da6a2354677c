package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/reelrank/internal/auth"
	"github.com/hyperjump/reelrank/internal/server"
	"github.com/hyperjump/reelrank/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

var noWatch bool

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP API and watch the drop directories",
	Args:  cobra.NoArgs,
	RunE:  runServer,
}

func init() {
	serverCmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not watch the configured drop directories")
	rootCmd.AddCommand(serverCmd)
}

func runServer(_ *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokens, err := auth.NewJWTManager(cfg.Auth)
	if err != nil {
		return err
	}

	components, err := initializeComponents(ctx, cfg, logger, componentOptions{keyword: true})
	if err != nil {
		return err
	}
	defer components.Close()

	if !noWatch && len(cfg.Ingest.WatchDirectories) > 0 {
		w := watcher.New(cfg.Ingest, components.Indexer, watcher.WithLogger(logger))
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer func() {
			logger.Debug("stopping watcher", zap.Int("pending", w.Pending()))
			w.Stop()
		}()
		go func() {
			n := w.Sync(ctx)
			logger.Info("drop directories synced", zap.Int("files", n))
		}()
	}

	srv := server.NewServer(server.Deps{
		Storage: components.Storage,
		Keyword: components.Keyword,
		Service: components.Service,
		Indexer: components.Indexer,
		Auth:    auth.NewAuthenticator(tokens, components.Storage),
		Loader:  components.Loader,
		Config:  cfg,
		Logger:  logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	return nil
}
