package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

type ExpenseKind string

type SenderType string

type Language string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"

	ExpenseKindFixed        ExpenseKind = "fixed"
	ExpenseKindVariable     ExpenseKind = "variable"
	ExpenseKindSubscription ExpenseKind = "subscription"

	SenderTypeUser SenderType = "user"
	SenderTypeAI   SenderType = "ai"

	LanguageEnglish Language = "en"
	LanguageSpanish Language = "es"
)

// Valid сообщает, является ли значение допустимым типом транзакции.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// Locale возвращает локаль форматирования валюты для языка.
func (l Language) Locale() string {
	if l == LanguageSpanish {
		return "es-MX"
	}
	return "en-US"
}

type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	DisplayName  string     `json:"display_name"`
	CompanyName  string     `json:"company_name,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

type Account struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	Name            string          `json:"name"`
	Type            string          `json:"type"`
	ComputedBalance decimal.Decimal `json:"computed_balance"`
	CreatedAt       time.Time       `json:"created_at"`
}

type Category struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Name          string          `json:"name"`
	Type          TransactionType `json:"type"`
	IsUserDefined bool            `json:"is_user_defined"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Installments struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

type Transaction struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	AccountID    uuid.UUID       `json:"account_id"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	Type         TransactionType `json:"type"`
	Date         time.Time       `json:"date"`
	Category     *Category       `json:"category,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	ExpenseKind  ExpenseKind     `json:"expense_kind,omitempty"`
	IsRecurring  bool            `json:"is_recurring"`
	NextDueDate  *time.Time      `json:"next_due_date,omitempty"`
	Installments *Installments   `json:"installments,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CategoryName возвращает имя категории или метку для транзакций без категории.
func (t Transaction) CategoryName() string {
	if t.Category == nil {
		return UncategorizedLabel
	}
	return t.Category.Name
}

// SignedAmount возвращает сумму со знаком: доход прибавляется, расход вычитается.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Type == TransactionTypeIncome {
		return t.Amount
	}
	return t.Amount.Neg()
}

// UncategorizedLabel is reported for transactions posted without a category.
const UncategorizedLabel = "Uncategorized"

type Conversation struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	Topic          string    `json:"topic"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type Message struct {
	ID             string     `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	UserID         uuid.UUID  `json:"user_id"`
	Content        string     `json:"content"`
	SenderType     SenderType `json:"sender_type"`
	SentAt         time.Time  `json:"sent_at"`
}

type RefreshToken struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	TokenHash  string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	ReplacedBy *uuid.UUID `json:"replaced_by,omitempty"`
}
