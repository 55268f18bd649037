package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"example.com/fincap/backend/internal/ai"
	"example.com/fincap/backend/internal/assistant"
	"example.com/fincap/backend/internal/auth"
	"example.com/fincap/backend/internal/ledger"
	"example.com/fincap/backend/internal/notifications"
)

const (
	maxDocumentBytes = 10 << 20
	documentField    = "file"
)

type DocumentHandler struct {
	Analyzer *assistant.DocumentAnalyzer
	Store    *ledger.Store
	Events   notifications.Publisher
}

// NewDocumentHandler создает обработчик анализа и импорта документов.
func NewDocumentHandler(analyzer *assistant.DocumentAnalyzer, store *ledger.Store, events notifications.Publisher) *DocumentHandler {
	return &DocumentHandler{Analyzer: analyzer, Store: store, Events: events}
}

type ImportRequest struct {
	Transactions []ai.Candidate `json:"transactions" validate:"required,min=1"`
}

// Analyze принимает документ (multipart, поле file) и возвращает кандидатов в транзакции.
// Ничего не проводит: пользователь подтверждает кандидатов через Import.
func (h *DocumentHandler) Analyze(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	header, err := c.FormFile(documentField)
	if err != nil {
		return badRequest(c, "file is required")
	}
	if header.Size > maxDocumentBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "file is too large"})
	}

	file, err := header.Open()
	if err != nil {
		return badRequest(c, "file cannot be read")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxDocumentBytes+1))
	if err != nil {
		return badRequest(c, "file cannot be read")
	}
	if len(data) == 0 {
		return badRequest(c, "file is empty")
	}
	if len(data) > maxDocumentBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "file is too large"})
	}

	mimeType := documentMIME(header.Header.Get(echo.HeaderContentType), data)
	result, err := h.Analyzer.Analyze(c.Request().Context(), userID, mimeType, data, requestLanguage(c))
	if err != nil {
		var backpressure *assistant.BackpressureError
		if errors.As(err, &backpressure) {
			return tooManyRequests(c, backpressure.WaitHint)
		}
		return ledgerError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// Import проводит подтвержденных кандидатов пакетом.
func (h *DocumentHandler) Import(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req ImportRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}
	if len(req.Transactions) > maxBulkItems {
		return badRequest(c, "too many transactions")
	}

	items := make([]TransactionRequest, 0, len(req.Transactions))
	for _, candidate := range req.Transactions {
		items = append(items, TransactionRequest{
			Description: candidate.Description,
			Amount:      candidate.Amount,
			Type:        string(candidate.Type),
			Date:        candidate.Date,
			Category:    candidate.Category,
		})
	}

	response, err := postBulk(c, h.Store, userID, items)
	if err != nil {
		return ledgerError(c, err)
	}

	notifications.PublishLedgerUpdate(h.Events, userID, notifications.SourceBulk, createdIDs(response)...)
	return c.JSON(http.StatusOK, response)
}

// documentMIME доверяет заявленному типу, если он не общий, иначе определяет по содержимому.
func documentMIME(declared string, data []byte) string {
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
			return mediaType
		}
	}
	detected := http.DetectContentType(data)
	mediaType, _, _ := mime.ParseMediaType(detected)
	if mediaType == "" {
		return strings.TrimSpace(detected)
	}
	return mediaType
}
