package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"example.com/fincap/backend/internal/ledger"
)

// TokenGauge отдает текущий остаток токенов AI-лимитера.
type TokenGauge interface {
	Available() int
	MaxTokens() int
}

type HealthResponse struct {
	Status     string `json:"status"`
	AsOf       string `json:"as_of"`
	AIProvider string `json:"ai_provider"`
	AITokens   int    `json:"ai_tokens_available"`
	AICapacity int    `json:"ai_tokens_max"`
	Events     bool   `json:"events_enabled"`
}

type HealthHandler struct {
	AsOf     time.Time
	Provider string
	Tokens   TokenGauge
	Events   bool
}

// Health возвращает статус сервиса и остаток AI-лимита. Запрос токен не расходует.
func (h *HealthHandler) Health(c echo.Context) error {
	resp := HealthResponse{
		Status:     "ok",
		AsOf:       h.AsOf.Format(ledger.DateLayout),
		AIProvider: h.Provider,
		Events:     h.Events,
	}
	if h.Tokens != nil {
		resp.AITokens = h.Tokens.Available()
		resp.AICapacity = h.Tokens.MaxTokens()
	}
	return c.JSON(http.StatusOK, resp)
}
