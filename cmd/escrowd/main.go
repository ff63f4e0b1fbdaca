// Package main runs the escrow controller server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	app "github.com/minted-network/escrow_layer/internal/app"
	"github.com/minted-network/escrow_layer/internal/app/httpapi"
	"github.com/minted-network/escrow_layer/internal/app/metrics"
	"github.com/minted-network/escrow_layer/internal/app/storage/postgres"
	"github.com/minted-network/escrow_layer/internal/chain"
	"github.com/minted-network/escrow_layer/internal/config"
	"github.com/minted-network/escrow_layer/internal/middleware"
	"github.com/minted-network/escrow_layer/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "escrowd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}).WithField("component", "escrowd")

	ledger, err := chain.NewClient(chain.Config{
		RPCURL:  cfg.Ledger.RPCURL,
		Timeout: time.Duration(cfg.Ledger.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("ledger client: %w", err)
	}

	stores, db, err := buildStores(cfg)
	if err != nil {
		return fmt.Errorf("configure stores: %w", err)
	}
	if db != nil {
		defer db.Close()
	}

	application, err := app.New(stores, ledger, cfg.Protocol.Address, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Stop(shutdownCtx); err != nil {
			log.WithError(err).Warn("error stopping application")
		}
	}()

	auditSink, err := httpapi.NewFileAuditSink(cfg.Server.AuditLog)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	audit := httpapi.NewAuditLog(0, auditSink)

	limiter := middleware.NewRateLimiter(20, 40, log)
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", limiter.Handler(httpapi.NewHandler(application, audit)))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           metrics.InstrumentHandler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildStores(cfg *config.Config) (app.Stores, *sql.DB, error) {
	if cfg.Database.DSN == "" {
		// No database configured: fall back to the in-memory store.
		return app.Stores{}, nil, nil
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return app.Stores{}, nil, err
	}

	store := postgres.New(db)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("ensure schema: %w", err)
	}

	return app.Stores{Escrow: store}, db, nil
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
