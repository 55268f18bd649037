package assistant

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"example.com/fincap/backend/internal/ai"
	"example.com/fincap/backend/internal/ledger"
	"example.com/fincap/backend/internal/models"
)

// DocumentResult is the in-band outcome of a document analysis.
type DocumentResult struct {
	Candidates []ai.Candidate `json:"candidates"`
	NotFound   bool           `json:"not_found"`
	Message    string         `json:"message,omitempty"`
}

// DocumentAnalyzer извлекает кандидатов в транзакции из загруженного документа.
// Не участвует в ходах диалога, но расходует токен того же лимитера.
type DocumentAnalyzer struct {
	service *ai.Service
	limiter Limiter
	audit   auditLog
	asOf    time.Time
	logger  *slog.Logger
}

func NewDocumentAnalyzer(service *ai.Service, limiter Limiter, asOf time.Time, opts Options) *DocumentAnalyzer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DocumentAnalyzer{
		service: service,
		limiter: limiter,
		audit:   newAuditLog(opts, logger),
		asOf:    asOf,
		logger:  logger,
	}
}

// Analyze возвращает *BackpressureError при отказе лимитера. Ошибки сервиса и
// пустой результат превращаются в DocumentResult с NotFound.
func (d *DocumentAnalyzer) Analyze(ctx context.Context, userID uuid.UUID, mimeType string, data []byte, lang models.Language) (DocumentResult, error) {
	if decision := d.limiter.TryConsume(); !decision.Allowed {
		return DocumentResult{}, &BackpressureError{WaitHint: decision.WaitHint}
	}

	input := ai.AnalyzeDocumentInput{
		MIMEType: mimeType,
		Data:     data,
		AsOf:     d.asOf.Format(ledger.DateLayout),
	}

	candidates, prompt, raw, err := d.service.AnalyzeDocument(ctx, input)
	d.audit.record(ctx, userID, requestTypeDocument, prompt, map[string]any{"mime_type": mimeType, "size": len(data), "as_of": input.AsOf}, map[string]any{"candidates": candidates}, raw, err)

	log := d.logger.With(slog.String("user_id", userID.String()), slog.String("mime_type", mimeType))
	if err != nil {
		if errors.Is(err, ai.ErrExtraction) {
			log.Warn("document analysis returned no usable json", slog.Any("error", err))
		} else {
			log.Error("document analysis failed", slog.Any("error", err))
		}
		return notFound(lang), nil
	}
	if len(candidates) == 0 {
		log.Info("document analysis found no transactions")
		return notFound(lang), nil
	}

	log.Info("document analyzed", slog.Int("candidates", len(candidates)))
	return DocumentResult{Candidates: candidates}, nil
}

func notFound(lang models.Language) DocumentResult {
	message := "No valid transactions found."
	if lang == models.LanguageSpanish {
		message = "No se encontraron transacciones válidas."
	}
	return DocumentResult{Candidates: []ai.Candidate{}, NotFound: true, Message: message}
}
