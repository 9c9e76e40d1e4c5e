package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"notebook/api/internal/app"
	"notebook/api/internal/config"
	"notebook/api/internal/logging"
	"notebook/api/internal/realtime"
	"notebook/api/internal/search"
	"notebook/api/internal/session"
	"notebook/api/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api stopped")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, dialect, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, dialect, cfg.MigrationsDir); err != nil {
		return err
	}
	dataStore := store.NewSQLStore(db, dialect)
	logger.Info().Str("dialect", string(dialect)).Msg("database ready")

	group, ctx := errgroup.WithContext(ctx)

	hub := realtime.NewHub(logger)
	defer hub.Close()

	var events realtime.Publisher = hub
	var service *app.Service
	var engine search.Engine
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
		engine = meili
	}
	searchService := search.NewService(engine, search.NewSQLSearch(db, dialect), logger)

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		logger.Info().Msg("using redis for refresh sessions and event fan-out")

		relay := realtime.NewRedisRelay(redisStore.Client(), hub, logger)
		events = relay
		group.Go(func() error { return relay.Run(ctx) })
		service = app.New(cfg, dataStore, redisStore, events, searchService, logger)
	} else {
		logger.Info().Msg("using the database for refresh sessions")
		service = app.New(cfg, dataStore, dataStore, events, searchService, logger)
	}

	if engine != nil {
		group.Go(func() error {
			searchService.ReindexAll(ctx)
			return nil
		})
	}

	httpServer := app.NewHTTPServer(service, realtime.NewHandler(hub, logger), cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group.Go(func() error {
		logger.Info().Str("addr", cfg.Addr).Msg("notebook api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
