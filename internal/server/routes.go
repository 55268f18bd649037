package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"example.com/fincap/backend/internal/handlers"
)

func registerRoutes(
	e *echo.Echo,
	healthHandler *handlers.HealthHandler,
	authHandler *handlers.AuthHandler,
	transactionHandler *handlers.TransactionHandler,
	dashboardHandler *handlers.DashboardHandler,
	statsHandler *handlers.StatsHandler,
	documentHandler *handlers.DocumentHandler,
	chatHandler *handlers.ChatHandler,
	notificationHandler *handlers.NotificationHandler,
	authMiddleware echo.MiddlewareFunc,
	streamMiddleware echo.MiddlewareFunc,
	authRateLimiter echo.MiddlewareFunc,
) {
	e.GET("/health", healthHandler.Health)

	api := e.Group("/api/v1")
	authGroup := api.Group("/auth", authRateLimiter)

	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/refresh", authHandler.Refresh)
	authGroup.POST("/logout", authHandler.Logout)
	authGroup.GET("/me", authHandler.Me, authMiddleware)

	transactions := api.Group("/transactions", authMiddleware)
	transactions.GET("", transactionHandler.List)
	transactions.POST("", transactionHandler.Create)
	transactions.POST("/bulk", transactionHandler.Bulk)
	transactions.GET("/export", transactionHandler.Export)

	api.GET("/categories", transactionHandler.Categories, authMiddleware)
	api.GET("/dashboard", dashboardHandler.Get, authMiddleware)
	api.GET("/stats/calendar", statsHandler.Calendar, authMiddleware)

	documents := api.Group("/documents", authMiddleware)
	documents.POST("/analyze", documentHandler.Analyze, middleware.BodyLimit(documentBodyLimit))
	documents.POST("/import", documentHandler.Import)

	chat := api.Group("/chat", authMiddleware)
	chat.GET("/messages", chatHandler.History)
	chat.POST("/messages", chatHandler.Send)
	chat.DELETE("/messages", chatHandler.Clear)

	api.POST("/notifications/ticket", notificationHandler.Ticket, authMiddleware)
	api.GET("/notifications/stream", notificationHandler.Stream, streamMiddleware)
}
