package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"example.com/fincap/backend/internal/ai"
	"example.com/fincap/backend/internal/config"
	"example.com/fincap/backend/internal/notifications"
)

type fakeAI struct {
	mu      sync.Mutex
	replies []ai.ChatResponse
	extract string
}

func (f *fakeAI) Chat(ctx context.Context, request ai.ChatRequest) (ai.ChatResponse, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.replies) == 0 {
		return ai.ChatResponse{Text: "ok", Turn: ai.Turn{Role: ai.RoleModel, Text: "ok"}}, nil, nil
	}
	next := f.replies[0]
	f.replies = f.replies[1:]
	return next, nil, nil
}

func (f *fakeAI) Extract(ctx context.Context, request ai.ExtractRequest) (string, []byte, error) {
	return f.extract, nil, nil
}

type recordingBroker struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (b *recordingBroker) Publish(userID uuid.UUID, event notifications.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroker) sources() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.events))
	for _, event := range b.events {
		if update, ok := event.Data.(notifications.LedgerUpdate); ok {
			out = append(out, update.Source)
		}
	}
	return out
}

func testConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{
			JWTSecret:          "test-secret",
			JWTIssuer:          "fincap-test",
			AccessTokenTTL:     time.Minute,
			RefreshTokenTTL:    time.Hour,
			RateLimitPerMinute: 600,
			RateLimitBurst:     100,
		},
		AI: config.AIConfig{
			Provider:           "gemini",
			Model:              "test-model",
			RateLimitMaxTokens: 15,
			RateLimitWindow:    time.Minute,
		},
		Ledger: config.LedgerConfig{
			AsOf:          time.Date(2025, 11, 18, 0, 0, 0, 0, time.UTC),
			RiskThreshold: decimal.NewFromInt(5000),
		},
	}
}

type testAPI struct {
	t       *testing.T
	e       *Server
	token   string
	refresh string
}

func newTestAPI(t *testing.T, client ai.Client, broker notifications.Publisher) *testAPI {
	t.Helper()
	return newTestAPIWith(t, Dependencies{AI: client, Broker: broker})
}

func newTestAPIWith(t *testing.T, deps Dependencies) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := New(testConfig(), logger, deps)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	api := &testAPI{t: t, e: e}
	rec := api.do(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":        "founder@example.com",
		"password":     "password123",
		"name":         "Ana",
		"company_name": "Acme",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var auth struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	api.decode(rec, &auth)
	api.token = auth.AccessToken
	api.refresh = auth.RefreshToken
	return api
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return a.serve(req)
}

func (a *testAPI) serve(req *http.Request) *httptest.ResponseRecorder {
	if a.token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+a.token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) decode(rec *httptest.ResponseRecorder, target any) {
	a.t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), target); err != nil {
		a.t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
}

// TestLedgerEndpoints проверяет проводку, пакетный импорт, фильтр и снимок.
func TestLedgerEndpoints(t *testing.T) {
	broker := &recordingBroker{}
	api := newTestAPI(t, &fakeAI{}, broker)

	rec := api.do(http.MethodPost, "/api/v1/transactions", map[string]any{
		"description": "Client invoice",
		"amount":      12000,
		"type":        "income",
		"date":        "2025-10-01",
		"category":    "Sales",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = api.do(http.MethodPost, "/api/v1/transactions", map[string]any{"amount": "abc", "type": "expense"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric amount, got %d", rec.Code)
	}

	rec = api.do(http.MethodPost, "/api/v1/transactions/bulk", map[string]any{
		"transactions": []map[string]any{
			{"description": "Office rent", "amount": "2000", "type": "expense", "date": "2025-10-05", "category": "Rent"},
			{"description": "Transfer", "amount": 10, "type": "transfer"},
			{"description": "Ads", "amount": 1000, "type": "expense", "date": "2025-11-02", "category": "Marketing"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("bulk: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var bulk struct {
		Created int `json:"created"`
		Failed  int `json:"failed"`
		Results []struct {
			Index int    `json:"index"`
			Error string `json:"error"`
		} `json:"results"`
	}
	api.decode(rec, &bulk)
	if bulk.Created != 2 || bulk.Failed != 1 || bulk.Results[1].Error == "" {
		t.Fatalf("unexpected bulk result %+v", bulk)
	}

	rec = api.do(http.MethodGet, "/api/v1/transactions?type=expense&min_amount=1500", nil)
	var list struct {
		Transactions []struct {
			Description string `json:"description"`
		} `json:"transactions"`
	}
	api.decode(rec, &list)
	if len(list.Transactions) != 1 || list.Transactions[0].Description != "Office rent" {
		t.Fatalf("unexpected filter result %+v", list.Transactions)
	}

	rec = api.do(http.MethodGet, "/api/v1/transactions?start_date=2025/10/01", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed date, got %d", rec.Code)
	}

	rec = api.do(http.MethodGet, "/api/v1/dashboard?lang=es", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var dashboard struct {
		Snapshot struct {
			CurrentCash decimal.Decimal `json:"current_cash"`
			SafeToSpend decimal.Decimal `json:"safe_to_spend"`
		} `json:"snapshot"`
		Formatted struct {
			Locale string `json:"locale"`
		} `json:"formatted"`
	}
	api.decode(rec, &dashboard)
	if !dashboard.Snapshot.CurrentCash.Equal(decimal.NewFromInt(9000)) {
		t.Fatalf("expected cash 9000, got %s", dashboard.Snapshot.CurrentCash)
	}
	if !dashboard.Snapshot.SafeToSpend.Equal(decimal.NewFromInt(4000)) {
		t.Fatalf("expected safe to spend 4000, got %s", dashboard.Snapshot.SafeToSpend)
	}
	if dashboard.Formatted.Locale != "es-MX" {
		t.Fatalf("expected es-MX locale, got %s", dashboard.Formatted.Locale)
	}

	rec = api.do(http.MethodGet, "/api/v1/categories", nil)
	var categories struct {
		Categories []string `json:"categories"`
	}
	api.decode(rec, &categories)
	if len(categories.Categories) != 3 || categories.Categories[0] != "Marketing" {
		t.Fatalf("unexpected categories %v", categories.Categories)
	}

	rec = api.do(http.MethodGet, "/api/v1/transactions/export?type=expense", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/csv") {
		t.Fatalf("expected csv content type, got %q", rec.Header().Get(echo.HeaderContentType))
	}
	if lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n"); len(lines) != 3 {
		t.Fatalf("expected header and two expense rows, got %d lines", len(lines))
	}

	rec = api.do(http.MethodGet, "/api/v1/transactions/export?format=xml", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown export format, got %d", rec.Code)
	}

	rec = api.do(http.MethodGet, "/api/v1/stats/calendar?month=2025-10", nil)
	var calendar struct {
		Month   string          `json:"month"`
		Expense decimal.Decimal `json:"expense"`
		Income  decimal.Decimal `json:"income"`
	}
	api.decode(rec, &calendar)
	if calendar.Month != "2025-10" || !calendar.Expense.Equal(decimal.NewFromInt(2000)) || !calendar.Income.Equal(decimal.NewFromInt(12000)) {
		t.Fatalf("unexpected calendar totals %+v", calendar)
	}

	rec = api.do(http.MethodGet, "/api/v1/stats/calendar?month=october", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed month, got %d", rec.Code)
	}

	sources := broker.sources()
	if len(sources) != 2 || sources[0] != notifications.SourceManual || sources[1] != notifications.SourceBulk {
		t.Fatalf("unexpected published sources %v", sources)
	}
}

// TestChatToolInvocation проверяет проводку транзакции через ответ модели.
func TestChatToolInvocation(t *testing.T) {
	call := ai.ToolCall{ID: "call-1", Name: "createTransaction", Args: map[string]any{
		"description": "Figma",
		"amount":      45.0,
		"type":        "expense",
	}}
	client := &fakeAI{replies: []ai.ChatResponse{
		{ToolCalls: []ai.ToolCall{call}, Turn: ai.Turn{Role: ai.RoleModel, ToolCalls: []ai.ToolCall{call}}},
		{Text: "Saved Figma.", Turn: ai.Turn{Role: ai.RoleModel, Text: "Saved Figma."}},
	}}
	broker := &recordingBroker{}
	api := newTestAPI(t, client, broker)

	rec := api.do(http.MethodGet, "/api/v1/chat/messages", nil)
	var history struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	api.decode(rec, &history)
	if len(history.Messages) != 1 || history.Messages[0].ID != "welcome" {
		t.Fatalf("expected welcome message, got %+v", history.Messages)
	}

	rec = api.do(http.MethodPost, "/api/v1/chat/messages", map[string]string{"message": "Log Figma 45"})
	if rec.Code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var reply struct {
		Status      string `json:"status"`
		Text        string `json:"text"`
		DataChanged bool   `json:"data_changed"`
	}
	api.decode(rec, &reply)
	if reply.Status != "completed" || !reply.DataChanged || reply.Text != "Saved Figma." {
		t.Fatalf("unexpected reply %+v", reply)
	}

	sources := broker.sources()
	if len(sources) != 1 || sources[0] != notifications.SourceAssistant {
		t.Fatalf("expected assistant ledger update, got %v", sources)
	}

	rec = api.do(http.MethodDelete, "/api/v1/chat/messages", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("clear: expected 204, got %d", rec.Code)
	}
}

// TestDocumentAnalyzeAndImport проверяет загрузку документа и импорт кандидатов.
func TestDocumentAnalyzeAndImport(t *testing.T) {
	client := &fakeAI{extract: `{"transactions":[
		{"date":"2025-11-02","description":"AWS","amount":"$120.00","type":"debit","category":"Software"},
		{"date":"2025-11-03","description":"Refund","amount":"0","type":"credit","category":"Sales"}
	]}`}
	api := newTestAPI(t, client, nil)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "statement.csv")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = part.Write([]byte("date,description,amount\n2025-11-02,AWS,120.00\n"))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/analyze", &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := api.serve(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result struct {
		Candidates []ai.Candidate `json:"candidates"`
		NotFound   bool           `json:"not_found"`
	}
	api.decode(rec, &result)
	if result.NotFound || len(result.Candidates) != 1 {
		t.Fatalf("expected one candidate, got %+v", result)
	}

	rec = api.do(http.MethodPost, "/api/v1/documents/import", map[string]any{"transactions": result.Candidates})
	var imported struct {
		Created int `json:"created"`
	}
	api.decode(rec, &imported)
	if imported.Created != 1 {
		t.Fatalf("expected 1 imported transaction, got %d", imported.Created)
	}
}

// TestProtectedRoutesRequireToken проверяет 401 без токена.
func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t, &fakeAI{}, nil)
	api.token = ""

	for _, path := range []string{"/api/v1/dashboard", "/api/v1/transactions", "/api/v1/transactions/export", "/api/v1/stats/calendar", "/api/v1/chat/messages", "/api/v1/notifications/stream"} {
		rec := api.do(http.MethodGet, path, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

// TestRefreshTokenReuseRevokesSessions проверяет ротацию и реакцию на повторный refresh.
func TestRefreshTokenReuseRevokesSessions(t *testing.T) {
	api := newTestAPI(t, &fakeAI{}, nil)
	first := api.refresh

	rec := api.do(http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": first})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var rotated struct {
		RefreshToken string `json:"refresh_token"`
	}
	api.decode(rec, &rotated)
	if rotated.RefreshToken == "" || rotated.RefreshToken == first {
		t.Fatal("expected a new refresh token")
	}

	rec = api.do(http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": first})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on reuse, got %d", rec.Code)
	}

	rec = api.do(http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": rotated.RefreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected rotated token revoked after reuse, got %d", rec.Code)
	}

	rec = api.do(http.MethodPost, "/api/v1/transactions", map[string]any{"amount": "abc", "type": "expense", "date": "11/02/2025"})
	var failure struct {
		Fields []string `json:"fields"`
	}
	api.decode(rec, &failure)
	if rec.Code != http.StatusBadRequest || len(failure.Fields) != 2 || failure.Fields[0] != "amount" || failure.Fields[1] != "date" {
		t.Fatalf("expected amount and date reported, got %d %v", rec.Code, failure.Fields)
	}
}

// TestHealthReportsLimiter проверяет, что health показывает остаток AI-лимита.
func TestHealthReportsLimiter(t *testing.T) {
	api := newTestAPI(t, &fakeAI{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	api.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}

	var health struct {
		Status     string `json:"status"`
		AsOf       string `json:"as_of"`
		AITokens   int    `json:"ai_tokens_available"`
		AICapacity int    `json:"ai_tokens_max"`
		Events     bool   `json:"events_enabled"`
	}
	api.decode(rec, &health)
	if health.Status != "ok" || health.AsOf != "2025-11-18" || health.AICapacity != 15 || health.AITokens != 15 || health.Events {
		t.Fatalf("unexpected health %+v", health)
	}
}

// TestStreamTicket проверяет подключение к SSE по тикету из query.
func TestStreamTicket(t *testing.T) {
	api := newTestAPI(t, &fakeAI{}, nil)

	rec := api.do(http.MethodPost, "/api/v1/notifications/ticket", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("ticket: expected 201, got %d", rec.Code)
	}
	var ticket struct {
		StreamURL string `json:"stream_url"`
	}
	api.decode(rec, &ticket)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, ticket.StreamURL, nil).WithContext(ctx)
	rec = httptest.NewRecorder()
	api.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "event: connected") {
		t.Fatalf("expected connected event, got %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/notifications/stream?ticket="+api.token, nil)
	rec = httptest.NewRecorder()
	api.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("access token in query must be rejected, got %d", rec.Code)
	}
}

type slowSheet struct {
	mu   sync.Mutex
	rows [][]string
}

func (s *slowSheet) AppendRows(ctx context.Context, rows [][]string) error {
	time.Sleep(50 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rows...)
	return nil
}

func (s *slowSheet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// TestDrainWaitsForSheetAppends проверяет, что остановка дожидается записи в таблицу.
func TestDrainWaitsForSheetAppends(t *testing.T) {
	sheet := &slowSheet{}
	api := newTestAPIWith(t, Dependencies{AI: &fakeAI{}, Sheet: sheet})

	rec := api.do(http.MethodPost, "/api/v1/transactions", map[string]any{
		"description": "Hosting",
		"amount":      "49.90",
		"type":        "expense",
		"date":        "2025-11-02",
		"category":    "Software",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := api.e.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := sheet.count(); got != 1 {
		t.Fatalf("expected 1 mirrored row after drain, got %d", got)
	}
}

// TestDrainWithoutSheet проверяет остановку без настроенной таблицы.
func TestDrainWithoutSheet(t *testing.T) {
	api := newTestAPI(t, &fakeAI{}, nil)
	if err := api.e.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
}
