package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/fincap/backend/internal/models"
)

const (
	defaultAccountName = "Main Business Account"
	defaultAccountType = "checking"
)

var defaultCategories = []struct {
	name string
	kind models.TransactionType
}{
	{"Sales", models.TransactionTypeIncome},
	{"Services", models.TransactionTypeIncome},
	{"Rent", models.TransactionTypeExpense},
	{"Payroll", models.TransactionTypeExpense},
	{"Software", models.TransactionTypeExpense},
	{"Marketing", models.TransactionTypeExpense},
}

type Config struct {
	AsOf    time.Time
	Latency time.Duration
}

type book struct {
	user         models.User
	accounts     []*models.Account
	categories   []*models.Category
	entries      []entry
	conversation *models.Conversation
	messages     []models.Message
}

type entry struct {
	seq uint64
	tx  models.Transaction
}

// Store владеет пользователями, счетами, категориями, транзакциями и перепиской.
// Все изменения проходят через его методы под одним мьютексом.
type Store struct {
	mu      sync.RWMutex
	books   map[uuid.UUID]*book
	emails  map[string]uuid.UUID
	seq     uint64
	asOf    time.Time
	latency time.Duration
	now     func() time.Time
}

type RegisterInput struct {
	Email        string
	PasswordHash string
	DisplayName  string
	CompanyName  string
}

// NewStore создает пустое хранилище леджера.
func NewStore(cfg Config) *Store {
	asOf := cfg.AsOf
	if asOf.IsZero() {
		asOf = DateOnly(time.Now())
	}

	return &Store{
		books:   make(map[uuid.UUID]*book),
		emails:  make(map[string]uuid.UUID),
		asOf:    DateOnly(asOf),
		latency: cfg.Latency,
		now:     time.Now,
	}
}

// AsOf возвращает настроенную "текущую" дату леджера.
func (s *Store) AsOf() time.Time {
	return s.asOf
}

// Register создает пользователя с основным счетом и базовыми категориями.
func (s *Store) Register(ctx context.Context, input RegisterInput) (models.User, error) {
	if err := s.pause(ctx); err != nil {
		return models.User{}, err
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return models.User{}, fmt.Errorf("%w: email is required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.emails[email]; exists {
		return models.User{}, ErrConflict
	}

	now := s.now().UTC()
	user := models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: input.PasswordHash,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		CompanyName:  strings.TrimSpace(input.CompanyName),
		CreatedAt:    now,
		LastLoginAt:  &now,
	}

	b := &book{user: user}
	b.accounts = append(b.accounts, newAccount(user.ID, now))
	for _, seed := range defaultCategories {
		b.categories = append(b.categories, &models.Category{
			ID:        uuid.New(),
			UserID:    user.ID,
			Name:      seed.name,
			Type:      seed.kind,
			CreatedAt: now,
		})
	}

	s.books[user.ID] = b
	s.emails[email] = user.ID
	return user, nil
}

// UserByEmail возвращает пользователя по email (с хэшем пароля).
func (s *Store) UserByEmail(ctx context.Context, email string) (models.User, error) {
	if err := s.pause(ctx); err != nil {
		return models.User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return s.books[id].user, nil
}

// User возвращает пользователя активной сессии.
func (s *Store) User(ctx context.Context, userID uuid.UUID) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := s.book(userID)
	if err != nil {
		return models.User{}, err
	}
	return b.user, nil
}

// TouchLogin обновляет время последнего входа.
func (s *Store) TouchLogin(ctx context.Context, userID uuid.UUID) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.book(userID)
	if err != nil {
		return models.User{}, err
	}
	now := s.now().UTC()
	b.user.LastLoginAt = &now
	return b.user, nil
}

// Accounts возвращает копии счетов пользователя.
func (s *Store) Accounts(ctx context.Context, userID uuid.UUID) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := s.book(userID)
	if err != nil {
		return nil, err
	}

	out := make([]models.Account, 0, len(b.accounts))
	for _, account := range b.accounts {
		out = append(out, *account)
	}
	return out, nil
}

// Categories возвращает копии категорий пользователя в порядке создания.
func (s *Store) Categories(ctx context.Context, userID uuid.UUID) ([]models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := s.book(userID)
	if err != nil {
		return nil, err
	}

	out := make([]models.Category, 0, len(b.categories))
	for _, category := range b.categories {
		out = append(out, *category)
	}
	return out, nil
}

func (s *Store) book(userID uuid.UUID) (*book, error) {
	if userID == uuid.Nil {
		return nil, ErrNoActiveUser
	}
	b, ok := s.books[userID]
	if !ok {
		return nil, ErrNoActiveUser
	}
	return b, nil
}

func (s *Store) pause(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(s.latency)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newAccount(userID uuid.UUID, now time.Time) *models.Account {
	return &models.Account{
		ID:              uuid.New(),
		UserID:          userID,
		Name:            defaultAccountName,
		Type:            defaultAccountType,
		ComputedBalance: decimal.Zero,
		CreatedAt:       now,
	}
}
