package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/quorum-hq/quorum/internal/app"
	"github.com/quorum-hq/quorum/internal/auth"
	"github.com/quorum-hq/quorum/internal/authz"
	"github.com/quorum-hq/quorum/internal/closure"
	closurehttp "github.com/quorum-hq/quorum/internal/closure/http"
	"github.com/quorum-hq/quorum/internal/platform/cache"
	"github.com/quorum-hq/quorum/internal/platform/db"
	"github.com/quorum-hq/quorum/internal/shared"
	"github.com/quorum-hq/quorum/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "quorum_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	policyCache := authz.NewCache()
	overrideStore := authz.NewPGOverrideStore(pool)
	policyService := authz.NewService(overrideStore, policyCache, logger)
	if err := policyService.LoadOverrides(ctx); err != nil {
		logger.Error("load policy overrides", slog.Any("error", err))
		os.Exit(1)
	}
	resolver := authz.NewResolver(policyCache)
	guard := authz.Middleware{Resolver: resolver, Logger: logger}
	policyHandler := authz.NewPolicyHandler(logger, policyService, guard)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	notifier := jobs.NewAsynqNotifier(asynqClient)

	closureRepo := closure.NewRepository(pool)
	closureService := closure.NewService(closureRepo, notifier, logger)
	closureHandler := closurehttp.NewHandler(logger, closureService, resolver)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthService:    authService,
		AuthHandler:    authHandler,
		PolicyHandler:  policyHandler,
		ClosureHandler: closureHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
