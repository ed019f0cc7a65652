package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"coderoom/internal/activity"
	"coderoom/internal/api"
	"coderoom/internal/config"
	"coderoom/internal/generationlog"
	"coderoom/internal/jobs"
	"coderoom/internal/llm"
	_ "coderoom/internal/llm/gemini"
	"coderoom/internal/prompts"
	"coderoom/internal/routers"
	"coderoom/internal/session"
	"coderoom/internal/utils"
)

const (
	shutdownTimeout  = 30 * time.Second
	redisPingTimeout = 5 * time.Second
	activityBuffer   = 256
)

var listenAndServe = func(server *http.Server) error {
	return server.ListenAndServe()
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket hub and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger, err := utils.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}
}

// run wires the hub and its collaborators and serves until ctx is done or
// the listener fails.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	provider, err := llm.NewProvider(cfg.AI.Provider)
	if err != nil {
		return fmt.Errorf("failed to initialize AI provider: %w", err)
	}

	promptManager, err := prompts.NewPromptManager()
	if err != nil {
		return fmt.Errorf("failed to initialize prompt manager: %w", err)
	}

	logger.Info("configuration loaded",
		zap.String("provider", provider.GetProviderName()),
		zap.Duration("ai_timeout", cfg.AI.Timeout),
		zap.Duration("typing_timeout", cfg.TypingTimeout))

	var publisher activity.Publisher = activity.NopPublisher{}
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Error("failed to reach redis, activity feed will be disabled", zap.Error(err))
			rdb.Close()
			rdb = nil
		} else {
			publisher = activity.NewRedisPublisher(rdb, cfg.Redis.Channel, activityBuffer, logger)
			logger.Info("activity feed enabled", zap.String("channel", cfg.Redis.Channel))
		}
	}

	var recorder generationlog.Recorder = generationlog.NopRecorder{}
	var pruner jobs.Pruner
	var generations *api.GenerationsHandler
	store, closeStore, err := openStore(cfg.GenerationLog, logger)
	if err != nil {
		logger.Error("failed to initialize generation log, records will not be kept", zap.Error(err))
	} else if store != nil {
		recorder = store
		pruner = store
		generations = api.NewGenerationsHandler(store, logger)
		defer closeStore()
	}

	hub := session.NewHub(session.Options{
		TypingTimeout: cfg.TypingTimeout,
		Logger:        logger,
		Activity:      publisher,
	})
	coordinator := session.NewCoordinator(hub, session.CoordinatorOptions{
		Provider: provider,
		Prompts:  promptManager,
		Timeout:  cfg.AI.Timeout,
		Prefix:   cfg.AI.Prefix,
		Recorder: recorder,
		Activity: publisher,
		Logger:   logger,
	})

	scheduler := jobs.NewScheduler(jobs.Config{
		PruneSchedule: cfg.Jobs.PruneSchedule,
		StatsSchedule: cfg.Jobs.StatsSchedule,
		Retention:     cfg.GenerationLog.Retention,
	}, pruner, hub, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start maintenance jobs", zap.Error(err))
	}

	handlers := api.NewHandlers(hub, coordinator, cfg, logger)
	health := api.NewHealthHandler(provider, promptManager, hub)

	// no WriteTimeout: websocket connections are long lived
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           routers.New(cfg, handlers, health, generations),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	serverDone := make(chan struct{})
	g.Go(func() error {
		defer close(serverDone)
		logger.Info("coderoom listening", zap.String("addr", server.Addr))
		if err := listenAndServe(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", server.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-serverDone:
			return nil
		case <-gctx.Done():
		}
		logger.Info("coderoom shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})
	err = g.Wait()

	hub.Close()
	coordinator.Wait()
	scheduler.Stop()
	if err := publisher.Close(); err != nil {
		logger.Warn("failed to close activity publisher", zap.Error(err))
	}
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("coderoom exited")
	return err
}

// openStore returns a nil store when the generation log is not configured.
func openStore(cfg config.GenerationLogConfig, logger *zap.Logger) (*generationlog.Store, func(), error) {
	if cfg.Driver == "" {
		return nil, nil, nil
	}
	db, err := generationlog.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	store := generationlog.NewStore(db, logger)
	if err := store.Migrate(); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	logger.Info("generation log enabled", zap.String("driver", cfg.Driver))
	return store, func() { sqlDB.Close() }, nil
}
