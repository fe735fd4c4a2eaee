package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fitcoach/internal/cache"
	"fitcoach/internal/config"
	"fitcoach/internal/database"
	"fitcoach/internal/jobs"
	"fitcoach/internal/log"
	"fitcoach/internal/server"
	"fitcoach/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var backends server.Backends

	if cfg.Postgres.DSN != "" {
		dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect postgres")
		}
		if cfg.Postgres.Migrate {
			if err := database.Migrate(ctx, dbPool); err != nil {
				logger.Fatal().Err(err).Msg("failed to apply schema")
			}
		}
		backends.DB = dbPool
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	if redisClient == nil {
		logger.Warn().Msg("no redis configured, domain events stay inside this process")
	}
	backends.Redis = redisClient

	if cfg.Storage.Endpoint != "" {
		mediaStore, err := storage.NewMediaStore(cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init media store")
		}
		if err := mediaStore.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure media bucket failed")
		}
		backends.Media = mediaStore
	}

	app := server.Build(cfg, logger, backends)
	httpServer := server.NewHTTPServer(cfg, logger, app.Handlers)

	consumerDone := make(chan struct{})
	if app.Consumer != nil {
		go func() {
			defer close(consumerDone)
			if err := app.Consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("event relay stopped")
			}
		}()
	} else {
		close(consumerDone)
	}

	scheduler := jobs.NewScheduler(cfg.Jobs, cfg.Realtime, app.Sessions, redisClient, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	shutdown(logger, httpServer, app, scheduler, consumerDone, backends.DB, redisClient)
}

func shutdown(
	logger zerolog.Logger,
	srv *server.HTTPServer,
	app *server.App,
	scheduler *jobs.Scheduler,
	consumerDone <-chan struct{},
	db *pgxpool.Pool,
	redisClient *redis.Client,
) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	app.Hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("jobs still running at shutdown")
	}

	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
	}
	if app.Consumer != nil {
		if err := app.Consumer.Leave(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("leave event consumer group failed")
		}
	}

	if db != nil {
		db.Close()
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
