// cmd/gitpulsectl/ingest.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"gitpulse/internal/config"
	"gitpulse/internal/github"
	"gitpulse/internal/ingest"
	"gitpulse/internal/store"
)

var (
	ingestPerPage  int
	ingestMaxPages int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <owner/name>",
	Short: "Fetch a repository and its commit history into the database.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := ingest.ParseRepoIdentifier(args[0])
		if err != nil {
			return err
		}

		logger, err := cliLogger(cmd)
		if err != nil {
			return err
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		dbpool, err := pgxpool.New(ctx, cfg.DBURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer dbpool.Close()

		ghClient, err := github.NewClient(cfg.GithubToken, cfg.GithubAPIURL, logger)
		if err != nil {
			return fmt.Errorf("failed to create github client: %w", err)
		}

		report, err := ingest.NewService(dbpool, ghClient, logger).Ingest(ctx, id, ingestPerPage, ingestMaxPages)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

var untrackCmd = &cobra.Command{
	Use:   "untrack <owner/name>",
	Short: "Delete a repository and, via cascade, all of its commits.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ingest.ParseRepoIdentifier(args[0]); err != nil {
			return err
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		dbpool, err := pgxpool.New(ctx, cfg.DBURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer dbpool.Close()

		id, err := store.New(dbpool).DeleteRepositoryByFullName(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to delete repository %q: %w", args[0], err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s (id=%d)\n", args[0], id)
		return nil
	},
}

func cliLogger(cmd *cobra.Command) (*slog.Logger, error) {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func init() {
	ingestCmd.Flags().IntVar(&ingestPerPage, "per-page", 30, "Commits per page (1-100)")
	ingestCmd.Flags().IntVar(&ingestMaxPages, "max-pages", 10, "Maximum pages to fetch")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(untrackCmd)
}
