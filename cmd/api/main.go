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

	"github.com/emilythestrangee/qa-forum/backend/internal/config"
	"github.com/emilythestrangee/qa-forum/backend/internal/database"
	"github.com/emilythestrangee/qa-forum/backend/internal/handlers"
	"github.com/emilythestrangee/qa-forum/backend/internal/reputation"
	"github.com/emilythestrangee/qa-forum/backend/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DB)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	engine := reputation.New(
		database.NewLedgerStore(db.GetDB(), cfg.DB.LockTimeout),
		cfg.Reputation.Rules(),
		reputation.WithTxTimeout(cfg.Reputation.TxTimeout),
		reputation.WithLogger(slog.Default().With("component", "ledger")),
	)

	srv := server.NewServer(cfg, db, handlers.NewHandler(db.GetDB(), engine, cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, srv, 10*time.Second); err != nil {
		slog.Error("server failed", "error", err)
		db.Close()
		os.Exit(1)
	}
	slog.Info("server closed")
}

// serve runs srv until ctx is cancelled, then waits for in-flight requests to
// drain. It returns the listener error when the server could not run.
func serve(ctx context.Context, srv *http.Server, drain time.Duration) error {
	done := make(chan struct{})
	go gracefulShutdown(ctx, srv, drain, done)

	slog.Info("listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}

func gracefulShutdown(ctx context.Context, srv *http.Server, drain time.Duration, done chan<- struct{}) {
	defer close(done)
	<-ctx.Done()
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}
