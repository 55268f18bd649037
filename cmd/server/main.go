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

	"example.com/fincap/backend/internal/config"
	"example.com/fincap/backend/internal/database"
	"example.com/fincap/backend/internal/events"
	"example.com/fincap/backend/internal/repository"
	"example.com/fincap/backend/internal/server"
	"example.com/fincap/backend/internal/sheets"
)

func main() {
	ensureEnvFile()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Env == "local" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx := context.Background()
	deps := server.Dependencies{AI: server.NewAIClient(cfg.AI)}

	if cfg.Database.Enabled {
		db, err := database.Open(ctx, cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer db.Close()

		aiRepo := repository.NewAIRepository(db)
		if err := aiRepo.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare audit schema", slog.String("error", err.Error()))
			os.Exit(1)
		}
		deps.Auditor = aiRepo
	}

	if cfg.Events.Enabled() {
		broker, err := events.NewClient(cfg.Events, logger)
		if err != nil {
			logger.Error("failed to connect to message broker", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer broker.Close()
		deps.Broker = broker
	}

	if cfg.Sheets.Enabled() {
		sheet, err := sheets.NewClient(ctx, cfg.Sheets)
		if err != nil {
			logger.Error("failed to create sheets client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := sheet.EnsureHeader(ctx); err != nil {
			logger.Warn("sheets header not written", slog.String("error", err.Error()))
		}
		deps.Sheet = sheet
	}

	e, err := server.New(cfg, logger, deps)
	if err != nil {
		logger.Error("failed to build server", slog.String("error", err.Error()))
		os.Exit(1)
	}
	httpServer := server.NewHTTPServer(cfg.Server, e)

	logger.Info("server starting",
		slog.String("addr", httpServer.Addr),
		slog.String("ai_provider", cfg.AI.Provider),
		slog.String("as_of", cfg.Ledger.AsOf.Format("2006-01-02")),
		slog.Bool("audit", cfg.Database.Enabled),
		slog.Bool("events", cfg.Events.Enabled()),
	)

	go func() {
		if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownSignal

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.String("error", err.Error()))
	}
	if err := e.Drain(shutdownCtx); err != nil {
		logger.Error("sheets mirror not drained", slog.String("error", err.Error()))
	}
}

func ensureEnvFile() {
	if os.Getenv("ENV_FILE") != "" {
		return
	}

	if _, err := os.Stat(".env"); err == nil {
		_ = os.Setenv("ENV_FILE", ".env")
		return
	}

	if _, err := os.Stat("../.env"); err == nil {
		_ = os.Setenv("ENV_FILE", "../.env")
	}
}
