package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"example.com/fincap/backend/internal/ai"
	"example.com/fincap/backend/internal/models"
	"example.com/fincap/backend/internal/ratelimit"
)

// TestAnalyzeReturnsCandidates проверяет успешный разбор документа.
func TestAnalyzeReturnsCandidates(t *testing.T) {
	client := &scriptedClient{extract: `{"transactions":[{"date":"2025-10-01","description":"Stripe payout","amount":"$2,000.00","type":"deposit","category":"Sales"}]}`}
	auditor := &memoryAuditor{}
	analyzer := NewDocumentAnalyzer(ai.NewService(client), fixedLimiter{decision: ratelimit.Decision{Allowed: true}}, testAsOf, Options{Auditor: auditor})

	result, err := analyzer.Analyze(context.Background(), uuid.New(), "application/pdf", []byte("%PDF"), models.LanguageEnglish)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.NotFound || len(result.Candidates) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Candidates[0].Type != models.TransactionTypeIncome {
		t.Fatalf("expected deposit to map to income, got %s", result.Candidates[0].Type)
	}
	if len(auditor.entries) != 1 || auditor.entries[0].RequestType != requestTypeDocument {
		t.Fatalf("expected document audit entry, got %+v", auditor.entries)
	}
}

// TestAnalyzeFailuresBecomeNotFound проверяет восстановление после ошибок извлечения.
func TestAnalyzeFailuresBecomeNotFound(t *testing.T) {
	allow := fixedLimiter{decision: ratelimit.Decision{Allowed: true}}
	clients := []*scriptedClient{
		{extract: "sorry, cannot read"},
		{extractErr: errors.New("upstream down")},
		{extract: `{"transactions":[]}`},
	}

	for i, client := range clients {
		analyzer := NewDocumentAnalyzer(ai.NewService(client), allow, testAsOf, Options{})
		result, err := analyzer.Analyze(context.Background(), uuid.New(), "application/pdf", []byte("x"), models.LanguageSpanish)
		if err != nil {
			t.Fatalf("case %d: unexpected error %v", i, err)
		}
		if !result.NotFound || len(result.Candidates) != 0 || result.Message == "" {
			t.Fatalf("case %d: expected not found, got %+v", i, result)
		}
	}
}

// TestAnalyzeSharesLimiter проверяет отказ при исчерпанном лимите.
func TestAnalyzeSharesLimiter(t *testing.T) {
	deny := fixedLimiter{decision: ratelimit.Decision{Allowed: false, WaitHint: time.Second}}
	analyzer := NewDocumentAnalyzer(ai.NewService(&scriptedClient{}), deny, testAsOf, Options{})

	_, err := analyzer.Analyze(context.Background(), uuid.New(), "application/pdf", []byte("x"), models.LanguageEnglish)
	var backpressure *BackpressureError
	if !errors.As(err, &backpressure) {
		t.Fatalf("expected backpressure, got %v", err)
	}
}
