package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nurkhatq/qrcode/internal/common"
	"github.com/nurkhatq/qrcode/internal/export"
	"github.com/nurkhatq/qrcode/internal/extract"
	"github.com/nurkhatq/qrcode/internal/ingest"
	"github.com/nurkhatq/qrcode/internal/repository"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCfg := repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime.Std(),
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime.Std(),
		DialTimeout:     cfg.Database.DialTimeout.Std(),
	}
	var repo repository.ShipmentRepository
	if dbCfg.IsPostgres() {
		pool, err := repository.OpenPostgres(ctx, dbCfg, logger)
		if err != nil {
			logger.Error("database open failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		repo = repository.NewPostgresRepository(pool, logger)
	} else {
		db, err := repository.OpenSQLite(cfg.Database.DSN, logger)
		if err != nil {
			logger.Error("database open failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		repo = repository.NewSQLiteRepository(db, logger)
	}

	pipeline := extract.NewPipeline(logger)
	exporter := export.NewService(repo, cfg.Export.SheetName, logger)
	fetcher := ingest.NewHTTPFetcher(cfg.Fetch.Timeout.Std(), cfg.Fetch.MaxBytes, cfg.Fetch.UserAgent)
	svc := ingest.NewService(fetcher, pipeline, repo, logger)
	if cfg.Export.WorkbookPath != "" {
		svc.WithPublisher(exporter, cfg.Export.WorkbookPath)
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: newRouter(svc, repo, exporter, logger),
	}
	go func() {
		logger.Info("http serving", "addr", cfg.Server.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
}
