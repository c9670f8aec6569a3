package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mozillians/internal/config"
	"mozillians/internal/i18n"
	"mozillians/internal/infra"
	"mozillians/internal/migrations"
	"mozillians/internal/server"
)

func main() {
	envFile := config.LoadDotEnvUp(8)

	cfg, err := config.LoadFromEnv()

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()

	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}
	if envFile != "" {
		logger.Info("loaded env file", zap.String("path", envFile))
	}

	if err := i18n.Load(); err != nil {
		logger.Fatal("i18n load failed", zap.Error(err))
	}

	if err := migrate(cfg.Postgres.DSN, logger); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	infraDeps, err := infra.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("infra init failed", zap.Error(err))
	}
	defer infraDeps.Close()

	handler, err := server.NewRouter(cfg, infraDeps, logger)
	if err != nil {
		logger.Fatal("router init failed", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	logger.Info("http server stopped")
}

func migrate(dsn string, logger *zap.Logger) error {
	r, err := migrations.NewRunner(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	if err := r.Up(); err != nil {
		return err
	}
	version, dirty, err := r.Version()
	if err != nil {
		return err
	}
	logger.Info("schema migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
