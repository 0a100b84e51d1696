package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/npezzotti/go-roomchat/internal/api"
	"github.com/npezzotti/go-roomchat/internal/auth"
	"github.com/npezzotti/go-roomchat/internal/config"
	"github.com/npezzotti/go-roomchat/internal/database"
	"github.com/npezzotti/go-roomchat/internal/logging"
	"github.com/npezzotti/go-roomchat/internal/server"
	"github.com/npezzotti/go-roomchat/internal/stats"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"
)

const shutdownTimeout = 10 * time.Second

var envFile string

// loadConfig returns the config and the process logger. On error the
// logger is a default one so the failure can still be reported.
func loadConfig(envFile string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, logging.New("info", logging.FormatJSON), err
	}

	return cfg, logging.New(cfg.LogLevel, cfg.LogFormat), nil
}

func main() {
	flag.StringVar(&envFile, "env-file", ".env", "optional file of KEY=value settings")
	flag.Parse()

	cfg, logger, err := loadConfig(envFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	if cfg.MigrateOnStart {
		if err := database.Migrate(cfg.DatabaseDSN); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
		logger.Info().Msg("migrations applied")
	}

	dbConn, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("db open")
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error().Err(err).Msg("db close")
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, dbConn, statsUpdater, server.Options{
		MessageLimit:  cfg.MessageRateLimit,
		MessageWindow: cfg.MessageWindow,
		StoreTimeout:  cfg.StoreTimeout,
		SweepInterval: cfg.SweepInterval,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("new chat server")
	}

	authn := auth.NewJWTAuthenticator(cfg.SigningKey, cfg.TokenTTL)
	srv := api.NewGoChatApp(mux, logger, chatServer, dbConn, authn, cfg)

	go chatServer.Run()

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
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server")
		}
	}

	shutDownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown")
	}

	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("chat server shutdown")
	}

	logger.Info().Msg("shutdown complete")
}
