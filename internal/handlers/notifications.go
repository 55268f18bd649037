package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"example.com/fincap/backend/internal/auth"
	"example.com/fincap/backend/internal/notifications"
)

const streamKeepAlive = 25 * time.Second

type NotificationHandler struct {
	Hub    *notifications.Hub
	Tokens *auth.TokenManager
}

type StreamTicketResponse struct {
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expires_at"`
	StreamURL string    `json:"stream_url"`
}

// NewNotificationHandler создает SSE-обработчик уведомлений.
func NewNotificationHandler(hub *notifications.Hub, tokens *auth.TokenManager) *NotificationHandler {
	return &NotificationHandler{Hub: hub, Tokens: tokens}
}

// Ticket выдает одноминутный тикет для подключения EventSource к потоку.
func (h *NotificationHandler) Ticket(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	ticket, expiresAt, err := h.Tokens.NewStreamTicket(userID)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusCreated, StreamTicketResponse{
		Ticket:    ticket,
		ExpiresAt: expiresAt,
		StreamURL: "/api/v1/notifications/stream?" + url.Values{auth.QueryTokenParam: {ticket}}.Encode(),
	})
}

// Stream открывает SSE-поток событий ledger_updated для пользователя.
func (h *NotificationHandler) Stream(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return serverError(c)
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	ch, unsubscribe := h.Hub.Subscribe(userID)
	defer unsubscribe()

	_ = writeSSE(c, notifications.Event{
		Type:      notifications.EventConnected,
		Timestamp: time.Now().UTC(),
		Data:      map[string]string{"user_id": userID.String()},
	})
	flusher.Flush()

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Response().Write([]byte(": keep-alive\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			if err := writeSSE(c, event); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

func writeSSE(c echo.Context, event notifications.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := c.Response().Write([]byte("event: " + event.Type + "\n")); err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
		return err
	}

	return nil
}
