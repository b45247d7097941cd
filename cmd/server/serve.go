package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/iliyamo/inventory-sales-backend/internal/auth"
	"github.com/iliyamo/inventory-sales-backend/internal/config"
	"github.com/iliyamo/inventory-sales-backend/internal/database"
	"github.com/iliyamo/inventory-sales-backend/internal/handler"
	"github.com/iliyamo/inventory-sales-backend/internal/logging"
	"github.com/iliyamo/inventory-sales-backend/internal/middleware"
	"github.com/iliyamo/inventory-sales-backend/internal/queue"
	"github.com/iliyamo/inventory-sales-backend/internal/repository"
	"github.com/iliyamo/inventory-sales-backend/internal/router"
	"github.com/iliyamo/inventory-sales-backend/internal/session"
	"github.com/iliyamo/inventory-sales-backend/internal/token"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	var noConsumer bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.New(os.Stdout, cfg.Env, cfg.LogLevel)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, !noConsumer, logger)
		},
	}
	cmd.Flags().BoolVar(&noConsumer, "no-consumer", false, "with AUDIT_TRANSPORT=amqp, only publish; run `consume` elsewhere")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, consume bool, logger *slog.Logger) error {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	users := repository.NewUserRepo(db)
	clients := repository.NewClientRepo(db)
	history := repository.NewSessionRepo(db)

	staffIssuer, err := token.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("staff issuer: %w", err)
	}
	clientIssuer, err := token.NewIssuer(cfg.ClientJWTSecret, cfg.ClientTokenTTL)
	if err != nil {
		return fmt.Errorf("client issuer: %w", err)
	}

	// Redis backs the token blacklist and the rate limiter. Without it both
	// degrade: an in-process set and no limiting.
	var (
		blacklist session.Blacklist
		pruner    session.Pruner
		limiter   echo.MiddlewareFunc
	)
	rdb, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, using in-process blacklist without rate limiting", "error", err)
		mem := session.NewMemoryBlacklist()
		blacklist, pruner = mem, mem
	} else {
		defer rdb.Close()
		blacklist = session.NewRedisBlacklist(rdb, cfg.Redis.Prefix)
		limiter = middleware.NewTokenBucket(cfg.RateLimit, rdb, logger)
	}

	var (
		audit     session.AuditSink = history
		publisher *queue.Publisher
	)
	if cfg.AuditTransport == config.AuditAMQP {
		publisher = queue.NewPublisher(cfg.RabbitURL, cfg.AuditQueue, logger)
		audit = publisher
		if consume {
			consumer := queue.NewConsumer(cfg.RabbitURL, cfg.AuditQueue, history, cfg.AuditTimeout, logger)
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("audit consumer stopped", "error", err)
				}
			}()
		}
	}

	registry := session.NewRegistry(session.Options{
		Audit:        audit,
		Sweeper:      history,
		Retention:    cfg.SessionRetention,
		AuditTimeout: cfg.AuditTimeout,
		Logger:       logger,
	})
	cleaner := session.NewCleaner(registry, pruner, cfg.CleanupInterval, logger)
	cleaner.Start(ctx)

	svc := auth.NewService(auth.ServiceConfig{
		Users:        users,
		Clients:      clients,
		Passwords:    auth.NewPasswords(cfg.BcryptCost),
		Signer:       staffIssuer,
		ClientSigner: clientIssuer,
		Sessions:     registry,
		Logger:       logger,
	})
	staffStage := auth.NewAuthenticator(auth.AuthenticatorConfig{
		Verifier:      staffIssuer,
		Sessions:      registry,
		Blacklist:     blacklist,
		Users:         users,
		LookupTimeout: cfg.UserStoreTimeout,
		Logger:        logger,
	})
	clientStage := auth.NewClientAuthenticator(clientIssuer, clients, blacklist, cfg.UserStoreTimeout, logger)
	logouts := auth.NewLogoutCoordinator(staffIssuer, clientIssuer, registry, blacklist, cfg.UserStoreTimeout, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLog(logger))

	err = router.Register(e, router.Deps{
		Auth:        handler.NewAuthHandler(svc, logouts, logger),
		Client:      handler.NewClientHandler(svc, logger),
		Sessions:    handler.NewSessionHandler(registry, history, logouts, logger),
		Health:      handler.Health(db),
		StaffStage:  staffStage,
		ClientStage: clientStage,
		RateLimit:   limiter,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	addr := ":" + cfg.Port
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "audit", cfg.AuditTransport)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	cleaner.Stop()
	// Close drains pending audit writes, so it runs before the sinks go away.
	registry.Close()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn("close publisher", "error", err)
		}
	}
	return serveErr
}
