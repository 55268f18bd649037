package assistant

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"example.com/fincap/backend/internal/repository"
)

type auditLog struct {
	auditor  Auditor
	provider string
	model    string
	logger   *slog.Logger
}

func newAuditLog(opts Options, logger *slog.Logger) auditLog {
	return auditLog{auditor: opts.Auditor, provider: opts.Provider, model: opts.Model, logger: logger}
}

// record пишет запрос к AI в журнал; ошибка записи только логируется.
func (a auditLog) record(ctx context.Context, userID uuid.UUID, requestType, prompt string, request, response any, raw []byte, callErr error) {
	if a.auditor == nil {
		return
	}

	requestPayload, _ := json.Marshal(request)
	var responsePayload []byte
	if callErr == nil {
		responsePayload, _ = json.Marshal(response)
	}

	entry := repository.AIRequestLog{
		UserID:          userID,
		RequestType:     requestType,
		Provider:        a.provider,
		Model:           a.model,
		Prompt:          prompt,
		RequestPayload:  requestPayload,
		ResponsePayload: responsePayload,
		RawResponse:     string(raw),
		Success:         callErr == nil,
	}
	if callErr != nil {
		message := callErr.Error()
		entry.ErrorMessage = &message
	}

	if err := a.auditor.LogRequest(ctx, entry); err != nil {
		a.logger.Warn("ai request log failed", slog.String("user_id", userID.String()), slog.Any("error", err))
	}
}
