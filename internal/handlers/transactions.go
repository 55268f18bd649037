package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"example.com/fincap/backend/internal/auth"
	"example.com/fincap/backend/internal/ledger"
	"example.com/fincap/backend/internal/models"
	"example.com/fincap/backend/internal/notifications"
)

const maxBulkItems = 500

type TransactionHandler struct {
	Store  *ledger.Store
	Events notifications.Publisher
}

// NewTransactionHandler создает обработчик транзакций.
func NewTransactionHandler(store *ledger.Store, events notifications.Publisher) *TransactionHandler {
	return &TransactionHandler{Store: store, Events: events}
}

type TransactionRequest struct {
	Description  string               `json:"description" validate:"max=200"`
	Amount       any                  `json:"amount" validate:"required,amount"`
	Type         string               `json:"type" validate:"required,oneof=income expense"`
	Date         string               `json:"date" validate:"omitempty,ledger_date"`
	Category     string               `json:"category" validate:"max=100"`
	Notes        string               `json:"notes" validate:"max=1000"`
	ExpenseKind  string               `json:"expense_kind" validate:"omitempty,oneof=fixed variable subscription"`
	IsRecurring  bool                 `json:"is_recurring"`
	NextDueDate  string               `json:"next_due_date" validate:"omitempty,ledger_date"`
	Installments *models.Installments `json:"installments"`
}

type BulkTransactionRequest struct {
	Transactions []TransactionRequest `json:"transactions" validate:"required,min=1"`
}

type TransactionResponse struct {
	Transaction models.Transaction `json:"transaction"`
}

type TransactionListResponse struct {
	Transactions []models.Transaction `json:"transactions"`
}

type BulkItemResponse struct {
	Index       int                 `json:"index"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
	Error       string              `json:"error,omitempty"`
}

type BulkResponse struct {
	Created int                `json:"created"`
	Failed  int                `json:"failed"`
	Results []BulkItemResponse `json:"results"`
}

type CategoryListResponse struct {
	Categories []string `json:"categories"`
}

// Create проводит одну транзакцию.
func (h *TransactionHandler) Create(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req TransactionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}

	draft, err := req.toDraft()
	if err != nil {
		return ledgerError(c, err)
	}

	tx, err := h.Store.PostTransaction(c.Request().Context(), userID, draft)
	if err != nil {
		return ledgerError(c, err)
	}

	notifications.PublishLedgerUpdate(h.Events, userID, notifications.SourceManual, tx.ID)
	return c.JSON(http.StatusCreated, TransactionResponse{Transaction: tx})
}

// Bulk проводит пакет транзакций; ошибки сообщаются по каждому элементу.
func (h *TransactionHandler) Bulk(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req BulkTransactionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}
	if len(req.Transactions) > maxBulkItems {
		return badRequest(c, "too many transactions")
	}

	response, err := postBulk(c, h.Store, userID, req.Transactions)
	if err != nil {
		return ledgerError(c, err)
	}

	notifications.PublishLedgerUpdate(h.Events, userID, notifications.SourceBulk, createdIDs(response)...)
	return c.JSON(http.StatusOK, response)
}

// List возвращает транзакции по фильтру из query-параметров.
func (h *TransactionHandler) List(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	criteria, err := parseCriteria(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	txs, err := h.Store.Filter(c.Request().Context(), userID, criteria)
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(http.StatusOK, TransactionListResponse{Transactions: txs})
}

// Categories возвращает имена категорий, встречающихся в транзакциях.
func (h *TransactionHandler) Categories(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	names, err := h.Store.CategoryNames(c.Request().Context(), userID)
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(http.StatusOK, CategoryListResponse{Categories: names})
}

// postBulk валидирует каждый элемент отдельно, чтобы ошибка одного не отклоняла пакет.
func postBulk(c echo.Context, store *ledger.Store, userID uuid.UUID, items []TransactionRequest) (BulkResponse, error) {
	results := make([]BulkItemResponse, len(items))
	drafts := make([]ledger.Draft, 0, len(items))
	positions := make([]int, 0, len(items))

	for i := range items {
		results[i].Index = i
		if err := c.Validate(&items[i]); err != nil {
			results[i].Error = validationMessage(err)
			continue
		}
		draft, err := items[i].toDraft()
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		drafts = append(drafts, draft)
		positions = append(positions, i)
	}

	if len(drafts) > 0 {
		posted, err := store.BulkPost(c.Request().Context(), userID, drafts)
		if err != nil {
			return BulkResponse{}, err
		}
		for j, result := range posted {
			item := &results[positions[j]]
			if result.Err != nil {
				item.Error = result.Err.Error()
				continue
			}
			item.Transaction = result.Transaction
		}
	}

	response := BulkResponse{Results: results}
	for _, item := range results {
		if item.Transaction != nil {
			response.Created++
		} else {
			response.Failed++
		}
	}
	return response, nil
}

func createdIDs(response BulkResponse) []uuid.UUID {
	ids := make([]uuid.UUID, 0, response.Created)
	for _, item := range response.Results {
		if item.Transaction != nil {
			ids = append(ids, item.Transaction.ID)
		}
	}
	return ids
}

func (r TransactionRequest) toDraft() (ledger.Draft, error) {
	amount, err := ledger.ParseAmount(r.Amount)
	if err != nil {
		return ledger.Draft{}, err
	}

	draft := ledger.Draft{
		Description:  r.Description,
		Amount:       amount,
		Type:         models.TransactionType(r.Type),
		Category:     r.Category,
		Notes:        strings.TrimSpace(r.Notes),
		ExpenseKind:  models.ExpenseKind(r.ExpenseKind),
		IsRecurring:  r.IsRecurring,
		Installments: r.Installments,
	}

	if r.Date != "" {
		date, err := ledger.ParseDate(r.Date)
		if err != nil {
			return ledger.Draft{}, err
		}
		draft.Date = date
	}
	if r.NextDueDate != "" {
		due, err := ledger.ParseDate(r.NextDueDate)
		if err != nil {
			return ledger.Draft{}, err
		}
		draft.NextDueDate = &due
	}
	return draft, nil
}

func parseCriteria(c echo.Context) (ledger.Criteria, error) {
	criteria := ledger.Criteria{
		Category: strings.TrimSpace(c.QueryParam("category")),
		Search:   c.QueryParam("search"),
	}

	if value := c.QueryParam("type"); value != "" {
		kind := models.TransactionType(strings.ToLower(value))
		if !kind.Valid() {
			return criteria, errors.New("type must be income or expense")
		}
		criteria.Type = kind
	}

	var err error
	if criteria.MinAmount, err = decimalParam(c, "min_amount"); err != nil {
		return criteria, err
	}
	if criteria.MaxAmount, err = decimalParam(c, "max_amount"); err != nil {
		return criteria, err
	}
	if criteria.StartDate, err = dateParam(c, "start_date"); err != nil {
		return criteria, err
	}
	if criteria.EndDate, err = dateParam(c, "end_date"); err != nil {
		return criteria, err
	}

	return criteria, nil
}

func decimalParam(c echo.Context, name string) (*decimal.Decimal, error) {
	value := strings.TrimSpace(c.QueryParam(name))
	if value == "" {
		return nil, nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number", name)
	}
	return &parsed, nil
}

func dateParam(c echo.Context, name string) (*time.Time, error) {
	value := strings.TrimSpace(c.QueryParam(name))
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(ledger.DateLayout, value)
	if err != nil {
		return nil, fmt.Errorf("%s must be in YYYY-MM-DD format", name)
	}
	return &parsed, nil
}
