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

	"golang.org/x/sync/errgroup"

	"civicdesk/internal/app"
	"civicdesk/internal/platform/config"
	"civicdesk/internal/platform/httpserver"
	"civicdesk/internal/platform/logger"
)

const shutdownTimeout = 10 * time.Second

// main wires dependencies through internal/app, serves HTTP and runs the
// background workers until SIGINT or SIGTERM.
func main() {
	cfg, errs := config.Load(os.Getenv("CIVICDESK_CONFIG"))
	if len(errs) > 0 {
		boot := slog.New(slog.NewJSONHandler(os.Stderr, nil))
		for _, err := range errs {
			boot.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}
	log := logger.New(cfg.Log, cfg.Server.Env)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.BootstrapAdmin(ctx); err != nil {
		return err
	}

	srv := httpserver.New(cfg.Server.Addr, a.Router())
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting civicdesk", "addr", cfg.Server.Addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.RunBackground(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
