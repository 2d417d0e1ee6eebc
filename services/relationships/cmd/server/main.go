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

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/authn"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/api"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/app"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/config"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/reconcile"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Stores.Close(closeCtx); err != nil {
			logger.Warn("close store", "error", err)
		}
	}()

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Handle("/metrics", promhttp.Handler())
	api.New(a.Engine, a.Stores.Notifications, a.Sweeper, authn.Authenticator{ServiceToken: cfg.ServiceToken}, logger).Routes(r)

	workerDone := make(chan struct{})
	if cfg.ReconcileInterval > 0 {
		go func() {
			defer close(workerDone)
			(&reconcile.Worker{Sweeper: a.Sweeper, Interval: cfg.ReconcileInterval}).Run(ctx)
		}()
	} else {
		close(workerDone)
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()
	logger.Info("relationships service listening", "port", cfg.Port, "store", cfg.StoreBackend)

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	stop()
	<-workerDone
	// Pending gateway pushes run detached from request contexts.
	a.Engine.Wait()
	return nil
}
