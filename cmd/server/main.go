package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/go-commhub/internal/api"
	"github.com/npezzotti/go-commhub/internal/config"
	"github.com/npezzotti/go-commhub/internal/database"
	"github.com/npezzotti/go-commhub/internal/message"
	"github.com/npezzotti/go-commhub/internal/notification"
	"github.com/npezzotti/go-commhub/internal/server"
	"github.com/npezzotti/go-commhub/internal/stats"
	"github.com/rs/zerolog"
)

var configPath string

func main() {
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		errLogger := zerolog.New(os.Stderr)
		errLogger.Fatal().Err(err).Msg("config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().
		Timestamp().
		Str("service", "commhub").
		Logger()

	if cfg.RunMigrations {
		if err := database.RunMigrations(cfg.DatabaseDSN); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
	}

	db, err := database.NewPgCommHubRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("db open")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("db close")
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	registry := server.NewConnectionRegistry(logger, statsUpdater)
	calls := server.NewCallCoordinator(logger, registry, cfg.CallTimeout, statsUpdater)
	notifications := notification.NewService(logger, db, registry, cfg.NotificationLimit)
	messages := message.NewService(logger, db, notifications)

	srv := api.NewCommHubApp(mux, logger, registry, calls, messages, notifications, db, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("received signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server")
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatal().Err(err).Msg("HTTP server shutdown")
	}

	logger.Info().Msg("shutting down hub...")
	calls.Shutdown()
	registry.Shutdown()

	logger.Info().Msg("shutdown complete")
}
