package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/inventory-sales-backend/internal/config"
	"github.com/iliyamo/inventory-sales-backend/internal/database"
	"github.com/iliyamo/inventory-sales-backend/internal/logging"
	"github.com/iliyamo/inventory-sales-backend/internal/repository"
	"github.com/iliyamo/inventory-sales-backend/internal/session"
)

func newSweepCommand() *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete session audit rows older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDatabase()
			if err != nil {
				return err
			}
			if retention > 0 {
				cfg.SessionRetention = retention
			}
			logger := logging.New(os.Stderr, cfg.Env, cfg.LogLevel)

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			db, err := database.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			registry := session.NewRegistry(session.Options{
				Sweeper:   repository.NewSessionRepo(db),
				Retention: cfg.SessionRetention,
				Logger:    logger,
			})
			defer registry.Close()

			n, err := registry.CleanupExpiredSessions(ctx)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			cmd.Printf("deleted %d session rows older than %s\n", n, cfg.SessionRetention)
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "override SESSION_RETENTION")
	return cmd
}
