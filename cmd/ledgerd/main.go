// Command ledgerd runs the marketplace ledger and payout service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	app "github.com/agoramesh/ledger/internal/app"
	"github.com/agoramesh/ledger/internal/app/config"
	"github.com/agoramesh/ledger/internal/app/httpapi"
	"github.com/agoramesh/ledger/internal/app/metrics"
	"github.com/agoramesh/ledger/internal/app/storage"
	"github.com/agoramesh/ledger/internal/app/storage/postgres"
	"github.com/agoramesh/ledger/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging).WithField("component", "ledgerd")

	var store storage.Backend
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.Open(cfg.Database.DSN)
		if err != nil {
			log.WithError(err).Fatal("connect to postgres")
		}
		defer db.Close()
		if err := postgres.Migrate(db); err != nil {
			log.WithError(err).Fatal("apply migrations")
		}
		store = postgres.New(db)
		log.Info("using postgres storage")
	default:
		log.Info("using in-memory storage")
	}

	opts, err := app.OptionsFromConfig(cfg)
	if err != nil {
		log.WithError(err).Fatal("invalid ledger options")
	}

	application, err := app.New(store, opts, log)
	if err != nil {
		log.WithError(err).Fatal("build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Fatal("start services")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", metrics.InstrumentHandler(httpapi.NewHandler(application)))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", addr).Info("ledger API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("service shutdown")
	}
	log.Info("stopped")
}
