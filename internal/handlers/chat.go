package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"example.com/fincap/backend/internal/assistant"
	"example.com/fincap/backend/internal/auth"
	"example.com/fincap/backend/internal/ledger"
	"example.com/fincap/backend/internal/models"
	"example.com/fincap/backend/internal/notifications"
)

type ChatHandler struct {
	Orchestrator *assistant.Orchestrator
	Store        *ledger.Store
	Events       notifications.Publisher
}

// NewChatHandler создает обработчик чата с AI-ассистентом.
func NewChatHandler(orchestrator *assistant.Orchestrator, store *ledger.Store, events notifications.Publisher) *ChatHandler {
	return &ChatHandler{Orchestrator: orchestrator, Store: store, Events: events}
}

type ChatMessageRequest struct {
	Message  string `json:"message" validate:"required,max=4000"`
	Language string `json:"lang" validate:"omitempty,oneof=en es"`
}

type ChatHistoryResponse struct {
	Messages []models.Message `json:"messages"`
}

// History возвращает переписку; пустая переписка начинается с приветствия.
func (h *ChatHandler) History(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	messages, err := h.Orchestrator.History(c.Request().Context(), userID, requestLanguage(c))
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(http.StatusOK, ChatHistoryResponse{Messages: messages})
}

// Send выполняет один ход диалога. Ошибки AI-сервиса приходят в теле ответа со статусом failed.
func (h *ChatHandler) Send(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req ChatMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}

	lang := requestLanguage(c)
	if req.Language != "" {
		lang = models.Language(req.Language)
	}

	reply, err := h.Orchestrator.Send(c.Request().Context(), userID, req.Message, lang)
	if err != nil {
		var backpressure *assistant.BackpressureError
		if errors.As(err, &backpressure) {
			return tooManyRequests(c, backpressure.WaitHint)
		}
		return ledgerError(c, err)
	}

	if reply.Transaction != nil {
		notifications.PublishLedgerUpdate(h.Events, userID, notifications.SourceAssistant, reply.Transaction.ID)
	}

	status := http.StatusOK
	if reply.Status == assistant.StatusIgnored {
		status = http.StatusAccepted
	}
	return c.JSON(status, reply)
}

// Clear удаляет переписку пользователя.
func (h *ChatHandler) Clear(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.Store.ClearHistory(c.Request().Context(), userID); err != nil {
		return ledgerError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}
