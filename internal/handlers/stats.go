package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"example.com/fincap/backend/internal/analytics"
	"example.com/fincap/backend/internal/auth"
)

const monthLayout = "2006-01"

type StatsHandler struct {
	Engine *analytics.Engine
}

// NewStatsHandler создает обработчик календарной статистики.
func NewStatsHandler(engine *analytics.Engine) *StatsHandler {
	return &StatsHandler{Engine: engine}
}

// Calendar возвращает суммы по дням месяца (параметр month в формате YYYY-MM).
func (h *StatsHandler) Calendar(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var month time.Time
	if raw := strings.TrimSpace(c.QueryParam("month")); raw != "" {
		parsed, err := time.Parse(monthLayout, raw)
		if err != nil {
			return badRequest(c, "invalid month")
		}
		month = parsed
	}

	cal, err := h.Engine.Calendar(c.Request().Context(), userID, month)
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(http.StatusOK, cal)
}
