package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"example.com/fincap/backend/internal/analytics"
	"example.com/fincap/backend/internal/auth"
	"example.com/fincap/backend/internal/ledger"
	"example.com/fincap/backend/internal/models"
	"example.com/fincap/backend/internal/money"
)

type DashboardHandler struct {
	Engine *analytics.Engine
}

// NewDashboardHandler создает обработчик финансового снимка.
func NewDashboardHandler(engine *analytics.Engine) *DashboardHandler {
	return &DashboardHandler{Engine: engine}
}

type FormattedFigures struct {
	Locale        string `json:"locale"`
	CurrentCash   string `json:"current_cash"`
	MonthlyBurn   string `json:"monthly_burn"`
	SafeToSpend   string `json:"safe_to_spend"`
	RiskThreshold string `json:"risk_threshold"`
}

type DashboardResponse struct {
	Snapshot  analytics.Snapshot `json:"snapshot"`
	Formatted FormattedFigures   `json:"formatted"`
}

// Get возвращает снимок на дату as_of (по умолчанию настроенная дата леджера).
func (h *DashboardHandler) Get(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var asOf time.Time
	if value := strings.TrimSpace(c.QueryParam("as_of")); value != "" {
		parsed, err := time.Parse(ledger.DateLayout, value)
		if err != nil {
			return badRequest(c, "as_of must be in YYYY-MM-DD format")
		}
		asOf = parsed
	}

	snapshot, err := h.Engine.ComputeSnapshot(c.Request().Context(), userID, asOf)
	if err != nil {
		return ledgerError(c, err)
	}

	locale := requestLanguage(c).Locale()
	return c.JSON(http.StatusOK, DashboardResponse{
		Snapshot: snapshot,
		Formatted: FormattedFigures{
			Locale:        locale,
			CurrentCash:   money.Format(snapshot.CurrentCash, locale),
			MonthlyBurn:   money.Format(snapshot.MonthlyBurn, locale),
			SafeToSpend:   money.Format(snapshot.SafeToSpend, locale),
			RiskThreshold: money.Format(snapshot.RiskThreshold, locale),
		},
	})
}

// requestLanguage берет язык из параметра lang или заголовка Accept-Language.
func requestLanguage(c echo.Context) models.Language {
	value := c.QueryParam("lang")
	if value == "" {
		value = c.Request().Header.Get("Accept-Language")
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(value)), string(models.LanguageSpanish)) {
		return models.LanguageSpanish
	}
	return models.LanguageEnglish
}
