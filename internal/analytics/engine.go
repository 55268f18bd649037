// Package analytics строит финансовый снимок (cash, burn, runway, помесячный ряд)
// по текущему содержимому леджера.
package analytics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/fincap/backend/internal/models"
)

const (
	defaultCompanyName = "My Startup"
	recentLimit        = 20
	defaultLookback    = 5
	maxLookback        = 11
	projectedMonths    = 1
	monthLabelLayout   = "Jan 06"
)

// Reader is the read side of the ledger the engine depends on.
type Reader interface {
	User(ctx context.Context, userID uuid.UUID) (models.User, error)
	Accounts(ctx context.Context, userID uuid.UUID) ([]models.Account, error)
	Transactions(ctx context.Context, userID uuid.UUID) ([]models.Transaction, error)
}

type MonthlyBucket struct {
	MonthStart time.Time       `json:"month_start"`
	Month      string          `json:"month"`
	Revenue    decimal.Decimal `json:"revenue"`
	Expenses   decimal.Decimal `json:"expenses"`
	BurnRate   decimal.Decimal `json:"burn_rate"`
}

type Snapshot struct {
	User               models.User          `json:"user"`
	CompanyName        string               `json:"company_name"`
	AsOf               time.Time            `json:"as_of"`
	CurrentCash        decimal.Decimal      `json:"current_cash"`
	MonthlyBurn        decimal.Decimal      `json:"monthly_burn"`
	RunwayMonths       float64              `json:"runway_months"`
	SafeToSpend        decimal.Decimal      `json:"safe_to_spend"`
	RiskThreshold      decimal.Decimal      `json:"risk_threshold"`
	MonthlyData        []MonthlyBucket      `json:"monthly_data"`
	RecentTransactions []models.Transaction `json:"recent_transactions"`
	UpcomingExpenses   []models.Transaction `json:"upcoming_expenses"`
}

// Engine не хранит собственного состояния: снимок строится заново при каждом вызове.
type Engine struct {
	reader        Reader
	riskThreshold decimal.Decimal
	asOf          time.Time
	logger        *slog.Logger
}

func NewEngine(reader Reader, riskThreshold decimal.Decimal, asOf time.Time, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}
	return &Engine{
		reader:        reader,
		riskThreshold: riskThreshold,
		asOf:          startOfDay(asOf),
		logger:        logger,
	}
}

// AsOf возвращает дату снимка по умолчанию.
func (e *Engine) AsOf() time.Time {
	return e.asOf
}

// ComputeSnapshot считает снимок на дату asOf (нулевое значение означает дату по умолчанию).
func (e *Engine) ComputeSnapshot(ctx context.Context, userID uuid.UUID, asOf time.Time) (Snapshot, error) {
	if asOf.IsZero() {
		asOf = e.asOf
	}
	asOf = startOfDay(asOf)

	user, err := e.reader.User(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	accounts, err := e.reader.Accounts(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	txs, err := e.reader.Transactions(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}

	cash := decimal.Zero
	for _, account := range accounts {
		cash = cash.Add(account.ComputedBalance)
	}

	burn := monthlyBurn(txs)
	runway := 0.0
	if burn.IsPositive() {
		runway = cash.Div(burn).InexactFloat64()
	}

	safe := cash.Sub(e.riskThreshold)
	if safe.IsNegative() {
		safe = decimal.Zero
	}

	company := user.CompanyName
	if company == "" {
		company = defaultCompanyName
	}

	snapshot := Snapshot{
		User:               user,
		CompanyName:        company,
		AsOf:               asOf,
		CurrentCash:        cash,
		MonthlyBurn:        burn,
		RunwayMonths:       runway,
		SafeToSpend:        safe,
		RiskThreshold:      e.riskThreshold,
		MonthlyData:        monthlySeries(txs, asOf),
		RecentTransactions: recent(txs, recentLimit),
		UpcomingExpenses:   upcoming(txs),
	}

	e.logger.Debug("snapshot computed",
		slog.String("user_id", userID.String()),
		slog.Int("transactions", len(txs)),
		slog.Int("months", len(snapshot.MonthlyData)),
	)
	return snapshot, nil
}

// monthlyBurn усредняет расходы по числу месяцев между первой и последней расходной транзакцией.
func monthlyBurn(txs []models.Transaction) decimal.Decimal {
	total := decimal.Zero
	var first, last time.Time
	found := false

	for _, tx := range txs {
		if tx.Type != models.TransactionTypeExpense {
			continue
		}
		total = total.Add(tx.Amount)
		if !found || tx.Date.Before(first) {
			first = tx.Date
		}
		if !found || tx.Date.After(last) {
			last = tx.Date
		}
		found = true
	}
	if !found {
		return decimal.Zero
	}

	span := monthSpan(first, last)
	if span < 1 {
		span = 1
	}
	return total.Div(decimal.NewFromInt(int64(span)))
}

// windowStart: по умолчанию 5 месяцев до asOf; расширяется назад до самой ранней
// транзакции, но не дальше 11 месяцев до asOf.
func windowStart(txs []models.Transaction, asOf time.Time) time.Time {
	start := addMonths(asOf, -defaultLookback)

	var earliest time.Time
	for i, tx := range txs {
		if i == 0 || tx.Date.Before(earliest) {
			earliest = tx.Date
		}
	}

	if len(txs) > 0 && earliest.Before(start) {
		start = earliest
		if floor := addMonths(asOf, -maxLookback); start.Before(floor) {
			start = floor
		}
	}
	return startOfMonth(start)
}

func monthlySeries(txs []models.Transaction, asOf time.Time) []MonthlyBucket {
	start := windowStart(txs, asOf)
	end := startOfMonth(addMonths(asOf, projectedMonths))

	var buckets []MonthlyBucket
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		bucket := MonthlyBucket{
			MonthStart: m,
			Month:      m.Format(monthLabelLayout),
			Revenue:    decimal.Zero,
			Expenses:   decimal.Zero,
		}
		for _, tx := range txs {
			if !sameMonth(tx.Date, m) {
				continue
			}
			if tx.Type == models.TransactionTypeIncome {
				bucket.Revenue = bucket.Revenue.Add(tx.Amount)
			} else {
				bucket.Expenses = bucket.Expenses.Add(tx.Amount)
			}
		}
		bucket.BurnRate = bucket.Expenses.Sub(bucket.Revenue)
		buckets = append(buckets, bucket)
	}
	return buckets
}

// recent ожидает txs в порядке от последней вставки; сортировка стабильна.
func recent(txs []models.Transaction, limit int) []models.Transaction {
	sorted := make([]models.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.After(sorted[j].Date)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func upcoming(txs []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, 0)
	for _, tx := range txs {
		if tx.Type == models.TransactionTypeExpense && tx.IsRecurring && tx.NextDueDate != nil {
			out = append(out, tx)
		}
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
