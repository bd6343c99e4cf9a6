// Package main runs the savings club API server.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"

	app "github.com/conthop/backend/internal/app"
	"github.com/conthop/backend/internal/app/httpapi"
	"github.com/conthop/backend/internal/config"
	"github.com/conthop/backend/internal/logging"
)

func main() {
	envFile := flag.String("env", ".env", "Optional dotenv file loaded before the environment")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logging.Default().WithError(err).Fatal("load config")
	}
	log := logging.New("club-api", cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := app.OpenStore(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.WithError(err).Warn("close store")
		}
	}()

	application, err := app.New(cfg, store, nil, log)
	if err != nil {
		return err
	}
	if err := application.Start(ctx); err != nil {
		return err
	}

	handler, err := httpapi.NewHandler(application, log, httpapi.Options{
		CORSOrigins:      cfg.CORS.Origins(),
		DisableRateLimit: !cfg.RateLimit.Enabled,
		AuditSize:        cfg.Audit.Size,
		AuditPath:        cfg.Audit.Path,
	})
	if err != nil {
		_ = application.Stop(context.Background())
		return err
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}
	return runErr
}
