package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"example.com/fincap/backend/internal/ledger"
	"example.com/fincap/backend/internal/models"
)

const candidatesField = "transactions"

// ErrExtraction is returned when the model output holds no usable JSON.
var ErrExtraction = errors.New("ai response does not contain json")

var nonNumeric = regexp.MustCompile(`[^0-9.\-]+`)

var candidateFields = []ToolParameter{
	{Name: "date", Type: ParameterString, Description: "YYYY-MM-DD", Required: true},
	{Name: "description", Type: ParameterString, Required: true},
	{Name: "amount", Type: ParameterNumber, Required: true},
	{Name: "type", Type: ParameterString, Description: "income or expense", Required: true},
	{Name: "category", Type: ParameterString, Required: true},
}

type Service struct {
	client Client
}

// NewService создает сервис работы с AI-клиентом.
func NewService(client Client) *Service {
	return &Service{client: client}
}

// Client возвращает нижележащий клиент провайдера.
func (s *Service) Client() Client {
	return s.client
}

type rawCandidate struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      json.RawMessage `json:"amount"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
}

type rawExtraction struct {
	Transactions []rawCandidate `json:"transactions"`
}

// AnalyzeDocument извлекает из документа кандидатов в транзакции и очищает их.
// Возвращает также промпт и сырой ответ для аудита.
func (s *Service) AnalyzeDocument(ctx context.Context, input AnalyzeDocumentInput) ([]Candidate, string, []byte, error) {
	prompt := buildDocumentPrompt(input.AsOf)

	content, raw, err := s.client.Extract(ctx, ExtractRequest{
		Prompt:    prompt,
		MIMEType:  input.MIMEType,
		Data:      input.Data,
		ListField: candidatesField,
		Fields:    candidateFields,
	})
	if err != nil {
		return nil, prompt, raw, err
	}

	var extraction rawExtraction
	if strings.HasPrefix(stripFences(content), "[") {
		err = parseJSONArray(content, &extraction.Transactions)
	} else {
		err = parseJSON(content, &extraction)
	}
	if err != nil {
		return nil, prompt, raw, err
	}

	return sanitizeCandidates(extraction.Transactions, input.AsOf), prompt, raw, nil
}

func buildDocumentPrompt(asOf string) string {
	year := "2025"
	if len(asOf) >= 4 {
		year = asOf[:4]
	}

	return fmt.Sprintf(`Analyze this financial document (bank statement, invoice, or receipt).
Extract all individual transactions found.

Rules:
1. Use the document's date for the transaction (YYYY-MM-DD).
2. If year is missing, assume %s.
3. Ensure amount is a pure number (no currency symbols).
4. Determine if it is 'income' or 'expense' based on context (credit/debit columns).
5. Assign a short, clear category name.`, year)
}

// sanitizeCandidates нормализует сумму, тип и дату; кандидаты с неположительной
// или нечисловой суммой отбрасываются.
func sanitizeCandidates(items []rawCandidate, asOf string) []Candidate {
	out := make([]Candidate, 0, len(items))
	for _, item := range items {
		amount, ok := sanitizeAmount(item.Amount)
		if !ok {
			continue
		}

		date := strings.TrimSpace(item.Date)
		if parsed, err := ledger.ParseDate(date); err == nil {
			date = parsed.Format(ledger.DateLayout)
		} else {
			date = asOf
		}

		out = append(out, Candidate{
			Date:        date,
			Description: strings.TrimSpace(item.Description),
			Amount:      amount,
			Type:        normalizeType(item.Type),
			Category:    strings.TrimSpace(item.Category),
		})
	}
	return out
}

func sanitizeAmount(raw json.RawMessage) (decimal.Decimal, bool) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return decimal.Decimal{}, false
	}

	if strings.HasPrefix(text, `"`) {
		unquoted, err := strconv.Unquote(text)
		if err != nil {
			return decimal.Decimal{}, false
		}
		text = nonNumeric.ReplaceAllString(unquoted, "")
	}

	amount, err := decimal.NewFromString(text)
	if err != nil || !amount.IsPositive() {
		return decimal.Decimal{}, false
	}
	return amount, true
}

func normalizeType(label string) models.TransactionType {
	label = strings.ToLower(label)
	for _, marker := range []string{"income", "deposit", "credit"} {
		if strings.Contains(label, marker) {
			return models.TransactionTypeIncome
		}
	}
	return models.TransactionTypeExpense
}

func parseJSON(input string, target interface{}) error {
	payload := extractJSON(input)
	if payload == "" {
		return ErrExtraction
	}

	if err := json.Unmarshal([]byte(payload), target); err != nil {
		return fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return nil
}

func parseJSONArray(input string, target interface{}) error {
	trimmed := stripFences(input)
	start := strings.Index(trimmed, "[")
	end := strings.LastIndex(trimmed, "]")
	if start == -1 || end == -1 || end <= start {
		return ErrExtraction
	}

	if err := json.Unmarshal([]byte(trimmed[start:end+1]), target); err != nil {
		return fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return nil
}

func extractJSON(input string) string {
	trimmed := stripFences(input)
	if trimmed == "" {
		return ""
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}

	return trimmed[start : end+1]
}

func stripFences(input string) string {
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimPrefix(strings.TrimSpace(trimmed), "json")
		trimmed = strings.TrimSpace(trimmed)
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	return trimmed
}
