package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperjump/reelrank/internal/cli"
	"github.com/hyperjump/reelrank/internal/recommend"
)

var (
	searchK       int
	recommendUser string
	recommendBy   string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find movies similar to free text",
	Long: `Search embeds the query and returns the nearest movies from the vector
index. The query is all remaining arguments joined by spaces, so quoting
multi-word queries is optional.

Examples:
  reelrank search space opera with a desert planet
  reelrank search --k 5 "heist thriller"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend movies for a user",
	Long: `Recommend builds a query from a user's profile, recent searches or
favorites and returns the nearest movies.`,
	Args: cobra.NoArgs,
	RunE: runRecommend,
}

func init() {
	searchCmd.Flags().IntVar(&searchK, "k", recommend.UseDefaultK, "number of results (negative uses recommend.default_k)")
	recommendCmd.Flags().IntVar(&searchK, "k", recommend.UseDefaultK, "number of results (negative uses recommend.default_k)")
	recommendCmd.Flags().StringVarP(&recommendUser, "user", "u", "", "username to recommend for")
	recommendCmd.Flags().StringVar(&recommendBy, "by", recommend.StrategyProfile, "signal to recommend from: profile, history or favorites")
	_ = recommendCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(searchCmd, recommendCmd)
}

// buildQuery joins the positional arguments into one query.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := buildQuery(args)
	if query == "" {
		return fmt.Errorf("query is required")
	}
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := commandContext(cmd)
	components, err := initializeComponents(ctx, cfg, logger, componentOptions{})
	if err != nil {
		return err
	}
	defer components.Close()

	start := time.Now()
	res, err := components.Service.ForQuery(ctx, query, searchK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return cli.WriteSearchResults(cmd.OutOrStdout(), res, time.Since(start), outputFormat())
}

func runRecommend(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := commandContext(cmd)
	components, err := initializeComponents(ctx, cfg, logger, componentOptions{})
	if err != nil {
		return err
	}
	defer components.Close()

	user, err := components.Storage.FindUser(ctx, recommendUser, "")
	if err != nil {
		return err
	}

	start := time.Now()
	var res *recommend.Result
	switch recommendBy {
	case recommend.StrategyProfile:
		res, err = components.Service.ForProfile(ctx, user, searchK)
	case recommend.StrategyHistory:
		res, err = components.Service.ForHistory(ctx, user.ID, searchK)
	case recommend.StrategyFavorites:
		res, err = components.Service.ForFavorites(ctx, user.ID, searchK)
	default:
		return fmt.Errorf("unknown signal %q (supported: profile, history, favorites)", recommendBy)
	}
	if err != nil {
		return fmt.Errorf("recommend failed: %w", err)
	}
	return cli.WriteSearchResults(cmd.OutOrStdout(), res, time.Since(start), outputFormat())
}
