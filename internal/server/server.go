package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"example.com/fincap/backend/internal/ai"
	"example.com/fincap/backend/internal/analytics"
	"example.com/fincap/backend/internal/assistant"
	"example.com/fincap/backend/internal/auth"
	"example.com/fincap/backend/internal/config"
	"example.com/fincap/backend/internal/handlers"
	"example.com/fincap/backend/internal/ledger"
	"example.com/fincap/backend/internal/notifications"
	"example.com/fincap/backend/internal/ratelimit"
	"example.com/fincap/backend/internal/repository"
	"example.com/fincap/backend/internal/sheets"
)

const documentBodyLimit = "12M"

// Dependencies содержит внешние зависимости сервера. Все, кроме AI, необязательны.
type Dependencies struct {
	AI      ai.Client
	Auditor assistant.Auditor
	Broker  notifications.Publisher
	Sheet   sheets.Appender
}

// Server is the Echo router plus the background writers that must finish before exit.
type Server struct {
	*echo.Echo
	mirror *sheets.Mirror
}

// Drain дожидается фоновых записей в Google Sheets. Вызывается после остановки HTTP.
func (s *Server) Drain(ctx context.Context) error {
	if s.mirror == nil {
		return nil
	}
	return s.mirror.Drain(ctx)
}

// New собирает HTTP-сервер Echo с роутами и зависимостями.
func New(cfg config.Config, logger *slog.Logger, deps Dependencies) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.AI == nil {
		deps.AI = NewAIClient(cfg.AI)
	}

	bucket, err := ratelimit.New(cfg.AI.RateLimitMaxTokens, cfg.AI.RateLimitWindow)
	if err != nil {
		return nil, fmt.Errorf("ai rate limiter: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	store := ledger.NewStore(ledger.Config{AsOf: cfg.Ledger.AsOf, Latency: cfg.Ledger.Latency})
	engine := analytics.NewEngine(store, cfg.Ledger.RiskThreshold, cfg.Ledger.AsOf, logger)
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	tokenRepo := repository.NewRefreshTokenRepository()

	notificationHub := notifications.NewHub()
	events := notifications.Fanout{notificationHub}
	if deps.Broker != nil {
		events = append(events, deps.Broker)
	}
	var mirror *sheets.Mirror
	if deps.Sheet != nil {
		mirror = sheets.NewMirror(store, deps.Sheet, cfg.Sheets.Timeout, logger)
		events = append(events, mirror)
	}

	opts := assistant.Options{
		Provider: cfg.AI.Provider,
		Model:    cfg.AI.Model,
		Cooldown: cfg.Chat.Cooldown,
		Auditor:  deps.Auditor,
		Logger:   logger,
	}
	orchestrator := assistant.NewOrchestrator(deps.AI, store, engine, bucket, opts)
	analyzer := assistant.NewDocumentAnalyzer(ai.NewService(deps.AI), bucket, cfg.Ledger.AsOf, opts)

	registerRoutes(
		e,
		&handlers.HealthHandler{
			AsOf:     store.AsOf(),
			Provider: cfg.AI.Provider,
			Tokens:   bucket,
			Events:   deps.Broker != nil,
		},
		handlers.NewAuthHandler(store, tokenRepo, tokenManager),
		handlers.NewTransactionHandler(store, events),
		handlers.NewDashboardHandler(engine),
		handlers.NewStatsHandler(engine),
		handlers.NewDocumentHandler(analyzer, store, events),
		handlers.NewChatHandler(orchestrator, store, events),
		handlers.NewNotificationHandler(notificationHub, tokenManager),
		auth.JWTMiddleware(tokenManager),
		auth.StreamMiddleware(tokenManager),
		authRateLimiter(cfg.Auth),
	)

	return &Server{Echo: e, mirror: mirror}, nil
}

// NewAIClient создает клиента выбранного AI-провайдера.
func NewAIClient(cfg config.AIConfig) ai.Client {
	if cfg.Provider == "groq" {
		return ai.NewGroqClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout, cfg.MaxOutputTokens)
	}
	return ai.NewGeminiClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout, cfg.MaxOutputTokens)
}

// NewHTTPServer создает net/http сервер с заданными таймаутами.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.String("remote_ip", v.RemoteIP),
				slog.Duration("latency", v.Latency),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}

			msg := "request completed"
			if v.Status >= http.StatusInternalServerError {
				logger.LogAttrs(c.Request().Context(), slog.LevelError, msg, attrs...)
				return nil
			}

			logger.LogAttrs(c.Request().Context(), slog.LevelInfo, msg, attrs...)
			return nil
		},
	})
}

func authRateLimiter(cfg config.AuthConfig) echo.MiddlewareFunc {
	limit := rate.Limit(float64(cfg.RateLimitPerMinute) / 60.0)
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      limit,
		Burst:     cfg.RateLimitBurst,
		ExpiresIn: time.Minute,
	})

	return middleware.RateLimiter(store)
}
