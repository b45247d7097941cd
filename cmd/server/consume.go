package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/inventory-sales-backend/internal/config"
	"github.com/iliyamo/inventory-sales-backend/internal/database"
	"github.com/iliyamo/inventory-sales-backend/internal/logging"
	"github.com/iliyamo/inventory-sales-backend/internal/queue"
	"github.com/iliyamo/inventory-sales-backend/internal/repository"
)

func newConsumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Apply session audit events from RabbitMQ to the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDatabase()
			if err != nil {
				return err
			}
			if cfg.RabbitURL == "" {
				return errors.New("RABBITMQ_URL is required")
			}
			logger := logging.New(os.Stdout, cfg.Env, cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			db, err := database.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			consumer := queue.NewConsumer(cfg.RabbitURL, cfg.AuditQueue, repository.NewSessionRepo(db), cfg.AuditTimeout, logger)
			logger.Info("consuming session events", "queue", cfg.AuditQueue)
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
