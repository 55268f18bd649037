package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/fincap/backend/internal/models"
)

const defaultDescription = "Untitled"

// Draft описывает транзакцию до проводки. Category всегда передается именем,
// разрешение в запись категории выполняет Store.
type Draft struct {
	Description  string
	Amount       decimal.Decimal
	Type         models.TransactionType
	Date         time.Time
	Category     string
	Notes        string
	ExpenseKind  models.ExpenseKind
	IsRecurring  bool
	NextDueDate  *time.Time
	Installments *models.Installments
}

// BulkResult is the per-item outcome of BulkPost.
type BulkResult struct {
	Index       int                 `json:"index"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
	Err         error               `json:"-"`
}

// Criteria задает фильтр транзакций; пустые поля не участвуют в отборе.
type Criteria struct {
	Type      models.TransactionType
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	StartDate *time.Time
	EndDate   *time.Time
	Category  string
	Search    string
}

// PostTransaction проводит транзакцию по первому счету пользователя.
// Баланс счета меняется под той же блокировкой, что и вставка.
func (s *Store) PostTransaction(ctx context.Context, userID uuid.UUID, draft Draft) (models.Transaction, error) {
	if err := s.pause(ctx); err != nil {
		return models.Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.post(userID, draft)
}

// BulkPost проводит черновики по порядку. Ошибка одного черновика не откатывает остальные.
func (s *Store) BulkPost(ctx context.Context, userID uuid.UUID, drafts []Draft) ([]BulkResult, error) {
	if err := s.pause(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.book(userID); err != nil {
		return nil, err
	}

	results := make([]BulkResult, 0, len(drafts))
	for i, draft := range drafts {
		tx, err := s.post(userID, draft)
		result := BulkResult{Index: i, Err: err}
		if err == nil {
			result.Transaction = &tx
		}
		results = append(results, result)
	}
	return results, nil
}

// Transactions возвращает все транзакции пользователя, начиная с последней вставленной.
func (s *Store) Transactions(ctx context.Context, userID uuid.UUID) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := s.book(userID)
	if err != nil {
		return nil, err
	}

	out := make([]models.Transaction, 0, len(b.entries))
	for i := len(b.entries) - 1; i >= 0; i-- {
		out = append(out, copyTransaction(b.entries[i].tx))
	}
	return out, nil
}

// Filter возвращает транзакции, удовлетворяющие всем заданным критериям,
// по убыванию даты; при равных датах первой идет более поздняя вставка.
func (s *Store) Filter(ctx context.Context, userID uuid.UUID, criteria Criteria) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := s.book(userID)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(criteria.Search))
	matched := make([]entry, 0, len(b.entries))
	for _, e := range b.entries {
		if criteria.matches(e.tx, search) {
			matched = append(matched, e)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].tx.Date.Equal(matched[j].tx.Date) {
			return matched[i].tx.Date.After(matched[j].tx.Date)
		}
		return matched[i].seq > matched[j].seq
	})

	out := make([]models.Transaction, 0, len(matched))
	for _, e := range matched {
		out = append(out, copyTransaction(e.tx))
	}
	return out, nil
}

// Lookup возвращает транзакции с указанными ID в порядке запроса; неизвестные ID пропускаются.
func (s *Store) Lookup(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := s.book(userID)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]models.Transaction, len(b.entries))
	for _, e := range b.entries {
		byID[e.tx.ID] = e.tx
	}

	out := make([]models.Transaction, 0, len(ids))
	for _, id := range ids {
		if tx, ok := byID[id]; ok {
			out = append(out, copyTransaction(tx))
		}
	}
	return out, nil
}

// CategoryNames возвращает отсортированные имена категорий, встречающихся в транзакциях.
func (s *Store) CategoryNames(ctx context.Context, userID uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := s.book(userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, e := range b.entries {
		seen[e.tx.CategoryName()] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c Criteria) matches(tx models.Transaction, search string) bool {
	if c.Type != "" && tx.Type != c.Type {
		return false
	}
	if c.MinAmount != nil && tx.Amount.LessThan(*c.MinAmount) {
		return false
	}
	if c.MaxAmount != nil && tx.Amount.GreaterThan(*c.MaxAmount) {
		return false
	}
	if c.StartDate != nil && tx.Date.Before(DateOnly(*c.StartDate)) {
		return false
	}
	if c.EndDate != nil && tx.Date.After(DateOnly(*c.EndDate)) {
		return false
	}
	if c.Category != "" && tx.CategoryName() != c.Category {
		return false
	}
	if search != "" && !strings.Contains(strings.ToLower(tx.Description), search) {
		return false
	}
	return true
}

// post выполняет проводку; вызывается под s.mu.
func (s *Store) post(userID uuid.UUID, draft Draft) (models.Transaction, error) {
	b, err := s.book(userID)
	if err != nil {
		return models.Transaction{}, err
	}
	if err := s.normalize(&draft); err != nil {
		return models.Transaction{}, err
	}

	now := s.now().UTC()
	if len(b.accounts) == 0 {
		b.accounts = append(b.accounts, newAccount(userID, now))
	}
	account := b.accounts[0]

	tx := models.Transaction{
		ID:           uuid.New(),
		UserID:       userID,
		AccountID:    account.ID,
		Description:  draft.Description,
		Amount:       draft.Amount,
		Type:         draft.Type,
		Date:         draft.Date,
		Category:     b.resolveCategory(userID, draft.Category, draft.Type, now),
		Notes:        draft.Notes,
		ExpenseKind:  draft.ExpenseKind,
		IsRecurring:  draft.IsRecurring,
		NextDueDate:  draft.NextDueDate,
		Installments: draft.Installments,
		CreatedAt:    now,
	}

	s.seq++
	b.entries = append(b.entries, entry{seq: s.seq, tx: tx})
	account.ComputedBalance = account.ComputedBalance.Add(tx.SignedAmount())

	return copyTransaction(tx), nil
}

func (s *Store) normalize(draft *Draft) error {
	if !draft.Type.Valid() {
		return fmt.Errorf("%w: type must be income or expense", ErrValidation)
	}
	if !draft.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	draft.Description = strings.TrimSpace(draft.Description)
	if draft.Description == "" {
		draft.Description = defaultDescription
	}
	if draft.Date.IsZero() {
		draft.Date = s.asOf
	}
	draft.Date = DateOnly(draft.Date)
	draft.Category = strings.TrimSpace(draft.Category)

	if draft.NextDueDate != nil {
		due := DateOnly(*draft.NextDueDate)
		draft.NextDueDate = &due
	}
	if draft.Installments != nil {
		plan := *draft.Installments
		if plan.Total <= 0 || plan.Current <= 0 || plan.Current > plan.Total {
			return fmt.Errorf("%w: installments must satisfy 1 <= current <= total", ErrValidation)
		}
		draft.Installments = &plan
	}
	return nil
}

// resolveCategory находит категорию по точному имени или создает пользовательскую.
func (b *book) resolveCategory(userID uuid.UUID, name string, kind models.TransactionType, now time.Time) *models.Category {
	if name == "" {
		return nil
	}
	for _, category := range b.categories {
		if category.Name == name {
			return category
		}
	}

	category := &models.Category{
		ID:            uuid.New(),
		UserID:        userID,
		Name:          name,
		Type:          kind,
		IsUserDefined: true,
		CreatedAt:     now,
	}
	b.categories = append(b.categories, category)
	return category
}

func copyTransaction(tx models.Transaction) models.Transaction {
	if tx.Category != nil {
		category := *tx.Category
		tx.Category = &category
	}
	if tx.NextDueDate != nil {
		due := *tx.NextDueDate
		tx.NextDueDate = &due
	}
	if tx.Installments != nil {
		plan := *tx.Installments
		tx.Installments = &plan
	}
	return tx
}
