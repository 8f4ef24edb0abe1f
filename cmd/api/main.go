package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/watchworthy-auth/internal/api/http"
	"github.com/spec-kit/watchworthy-auth/internal/api/http/handlers"
	"github.com/spec-kit/watchworthy-auth/internal/auth"
	"github.com/spec-kit/watchworthy-auth/internal/clock"
	"github.com/spec-kit/watchworthy-auth/internal/config"
	"github.com/spec-kit/watchworthy-auth/internal/domain"
	"github.com/spec-kit/watchworthy-auth/internal/events"
	"github.com/spec-kit/watchworthy-auth/internal/observability"
	"github.com/spec-kit/watchworthy-auth/internal/persistence"
	"github.com/spec-kit/watchworthy-auth/internal/repository"
	"github.com/spec-kit/watchworthy-auth/internal/service"
	"github.com/spec-kit/watchworthy-auth/internal/store"
	"github.com/spec-kit/watchworthy-auth/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Configured() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var redis *persistence.Redis
	if cfg.Store.Backend == store.BackendRedis {
		redis, err = persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redis.Close()
	}

	storeOpts := store.Options{
		Backend:   cfg.Store.Backend,
		Dir:       cfg.Store.Dir,
		KeyPrefix: cfg.Store.KeyPrefix,
		Logger:    logger,
	}
	if pg.Configured() {
		storeOpts.Pool = pg.PoolHandle()
	}
	if redis != nil {
		storeOpts.Redis = redis.Client
	}

	userColl, err := store.Open[domain.User](storeOpts, store.CollectionUsers)
	if err != nil {
		logger.Fatal("failed to open collection", zap.String("collection", store.CollectionUsers), zap.Error(err))
	}
	revokedColl, err := store.Open[domain.RevokedToken](storeOpts, store.CollectionRevokedTokens)
	if err != nil {
		logger.Fatal("failed to open collection", zap.String("collection", store.CollectionRevokedTokens), zap.Error(err))
	}
	resetColl, err := store.Open[domain.ResetToken](storeOpts, store.CollectionResetTokens)
	if err != nil {
		logger.Fatal("failed to open collection", zap.String("collection", store.CollectionResetTokens), zap.Error(err))
	}
	penaltyColl, err := store.Open[domain.Penalty](storeOpts, store.CollectionPenalties)
	if err != nil {
		logger.Fatal("failed to open collection", zap.String("collection", store.CollectionPenalties), zap.Error(err))
	}

	clk := clock.Real()
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	userRepo := repository.NewUserDirectory(userColl)
	penaltyRepo := repository.NewPenaltyRepository(penaltyColl)

	tokens := auth.NewTokenAuthority(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes, auth.TokenDependencies{
		Revocations: repository.NewRevocationRepository(revokedColl),
		Resets:      repository.NewPasswordResetRepository(resetColl),
		Clock:       clk,
		Logger:      logger,
	})
	ledger := service.NewPenaltyLedger(service.PenaltyDependencies{
		PenaltyRepo:   penaltyRepo,
		UserDirectory: userRepo,
		Clock:         clk,
		Dispatcher:    dispatcher,
		Logger:        logger,
	})
	gate := auth.NewAccessGate(tokens, userRepo, ledger)

	authService := service.NewAuthService(service.AuthDependencies{
		UserDirectory: userRepo,
		Tokens:        tokens,
		Dispatcher:    dispatcher,
		Clock:         clk,
		Logger:        logger,
		BcryptCost:    cfg.Auth.BcryptCost,
	})
	userService := service.NewUserService(service.UserDependencies{
		UserDirectory: userRepo,
		Clock:         clk,
		Logger:        logger,
	})

	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, cfg.Notification), logger)

	var scheduler *worker.Scheduler
	if cfg.Penalty.SchedulerEnabled {
		scheduler = worker.NewScheduler(ledger, cfg.Penalty.SweepSpec, cfg.Penalty.ReconcileSpec, logger)
		if err := scheduler.Start(); err != nil {
			logger.Fatal("failed to start penalty scheduler", zap.Error(err))
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Users:          handlers.NewUsersHandler(userService),
		Penalties:      handlers.NewPenaltiesHandler(ledger, gate, clk),
		AuthMiddleware: auth.NewAuthMiddleware(gate),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
