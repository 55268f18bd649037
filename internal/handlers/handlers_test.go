package handlers

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"example.com/fincap/backend/internal/models"
)

func newContext(target string, header map[string]string) echo.Context {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for key, value := range header {
		req.Header.Set(key, value)
	}
	return echo.New().NewContext(req, httptest.NewRecorder())
}

// TestParseCriteria проверяет разбор параметров фильтра.
func TestParseCriteria(t *testing.T) {
	c := newContext("/?type=Expense&min_amount=10.5&end_date=2025-11-30&category=Rent&search=office", nil)

	criteria, err := parseCriteria(c)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if criteria.Type != models.TransactionTypeExpense {
		t.Fatalf("expected expense, got %s", criteria.Type)
	}
	if criteria.MinAmount == nil || !criteria.MinAmount.Equal(decimal.RequireFromString("10.5")) {
		t.Fatalf("unexpected min amount %v", criteria.MinAmount)
	}
	if criteria.MaxAmount != nil || criteria.StartDate != nil {
		t.Fatal("expected absent criteria to stay nil")
	}
	if criteria.EndDate == nil || !criteria.EndDate.Equal(time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end date %v", criteria.EndDate)
	}
	if criteria.Category != "Rent" || criteria.Search != "office" {
		t.Fatalf("unexpected criteria %+v", criteria)
	}
}

// TestParseCriteriaInvalid проверяет ошибки разбора фильтра.
func TestParseCriteriaInvalid(t *testing.T) {
	for _, target := range []string{"/?type=transfer", "/?max_amount=ten", "/?start_date=01-11-2025"} {
		if _, err := parseCriteria(newContext(target, nil)); err == nil {
			t.Fatalf("expected error for %s", target)
		}
	}
}

// TestRequestLanguage проверяет выбор языка ответа.
func TestRequestLanguage(t *testing.T) {
	if lang := requestLanguage(newContext("/?lang=es", nil)); lang != models.LanguageSpanish {
		t.Fatalf("expected es from query, got %s", lang)
	}
	if lang := requestLanguage(newContext("/", map[string]string{"Accept-Language": "es-MX,es;q=0.9"})); lang != models.LanguageSpanish {
		t.Fatalf("expected es from header, got %s", lang)
	}
	if lang := requestLanguage(newContext("/", nil)); lang != models.LanguageEnglish {
		t.Fatalf("expected en by default, got %s", lang)
	}
}

// TestDocumentMIME проверяет определение типа загруженного файла.
func TestDocumentMIME(t *testing.T) {
	if got := documentMIME("application/pdf", []byte("%PDF-1.7")); got != "application/pdf" {
		t.Fatalf("expected declared type, got %s", got)
	}
	if got := documentMIME("application/octet-stream", []byte("date,amount\n")); got != "text/plain" {
		t.Fatalf("expected detected text/plain, got %s", got)
	}
	if got := documentMIME("", []byte("%PDF-1.7\n")); got != "application/pdf" {
		t.Fatalf("expected detected pdf, got %s", got)
	}
}

// TestTransactionRequestToDraft проверяет преобразование запроса в черновик.
func TestTransactionRequestToDraft(t *testing.T) {
	req := TransactionRequest{
		Description: "Netflix",
		Amount:      "15.99",
		Type:        "expense",
		Date:        "2025-11-01",
		IsRecurring: true,
		NextDueDate: "2025-12-01",
	}

	draft, err := req.toDraft()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !draft.Amount.Equal(decimal.RequireFromString("15.99")) {
		t.Fatalf("unexpected amount %s", draft.Amount)
	}
	if draft.NextDueDate == nil || draft.NextDueDate.Month() != time.December {
		t.Fatalf("unexpected next due date %v", draft.NextDueDate)
	}

	req.Amount = -5
	if _, err := req.toDraft(); err == nil {
		t.Fatal("expected error for negative amount")
	}
}

// TestDisplayName проверяет имя по умолчанию из email.
func TestDisplayName(t *testing.T) {
	if got := displayName("  ", "ana@example.com"); got != "ana" {
		t.Fatalf("expected ana, got %s", got)
	}
	if got := displayName("Ana Ruiz", "ana@example.com"); got != "Ana Ruiz" {
		t.Fatalf("expected Ana Ruiz, got %s", got)
	}
}

// TestWriteTransactionsCSV проверяет формат строк выгрузки.
func TestWriteTransactionsCSV(t *testing.T) {
	due := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	txs := []models.Transaction{{
		Description:  "Laptop, 3/12",
		Amount:       decimal.RequireFromString("250"),
		Type:         models.TransactionTypeExpense,
		Date:         time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		IsRecurring:  true,
		NextDueDate:  &due,
		Installments: &models.Installments{Current: 3, Total: 12},
	}}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writeTransactionsCSV(writer, txs); err != nil {
		t.Fatalf("write: %v", err)
	}
	writer.Flush()

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header and one row, got %d", len(records))
	}

	row := records[1]
	if row[2] != "Laptop, 3/12" || row[4] != "250.00" || row[5] != "-250.00" {
		t.Fatalf("unexpected amounts or description %v", row)
	}
	if row[6] != models.UncategorizedLabel || row[9] != "2025-12-01" || row[10] != "3/12" {
		t.Fatalf("unexpected scheduling columns %v", row)
	}
}
