package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/fincap/backend/internal/models"
)

type CalendarDay struct {
	Date         time.Time       `json:"date"`
	InMonth      bool            `json:"in_month"`
	Income       decimal.Decimal `json:"income"`
	Expense      decimal.Decimal `json:"expense"`
	Count        int             `json:"count"`
	Transactions []uuid.UUID     `json:"transaction_ids"`
}

type CalendarMonth struct {
	Month   string          `json:"month"`
	Start   time.Time       `json:"start"`
	End     time.Time       `json:"end"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Days    []CalendarDay   `json:"days"`
}

// Calendar раскладывает транзакции по дням сетки месяца: от воскресенья
// перед первым числом до субботы после последнего.
func (e *Engine) Calendar(ctx context.Context, userID uuid.UUID, month time.Time) (CalendarMonth, error) {
	if month.IsZero() {
		month = e.asOf
	}
	monthStart := startOfMonth(month)
	monthEnd := monthStart.AddDate(0, 0, daysIn(monthStart)-1)
	gridStart := monthStart.AddDate(0, 0, -int(monthStart.Weekday()))
	gridEnd := monthEnd.AddDate(0, 0, int(time.Saturday-monthEnd.Weekday()))

	txs, err := e.reader.Transactions(ctx, userID)
	if err != nil {
		return CalendarMonth{}, err
	}

	days := make([]CalendarDay, 0, 42)
	index := make(map[time.Time]int, 42)
	for day := gridStart; !day.After(gridEnd); day = day.AddDate(0, 0, 1) {
		index[day] = len(days)
		days = append(days, CalendarDay{
			Date:         day,
			InMonth:      sameMonth(day, monthStart),
			Transactions: []uuid.UUID{},
		})
	}

	out := CalendarMonth{
		Month: monthStart.Format("2006-01"),
		Start: gridStart,
		End:   gridEnd,
	}

	// Транзакции приходят от новых к старым; в дне сохраняем хронологию вставки.
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		pos, ok := index[startOfDay(tx.Date)]
		if !ok {
			continue
		}

		day := &days[pos]
		day.Count++
		day.Transactions = append(day.Transactions, tx.ID)
		switch tx.Type {
		case models.TransactionTypeIncome:
			day.Income = day.Income.Add(tx.Amount)
			if day.InMonth {
				out.Income = out.Income.Add(tx.Amount)
			}
		case models.TransactionTypeExpense:
			day.Expense = day.Expense.Add(tx.Amount)
			if day.InMonth {
				out.Expense = out.Expense.Add(tx.Amount)
			}
		}
	}

	out.Days = days
	e.logger.Debug("calendar computed",
		slog.String("user_id", userID.String()),
		slog.String("month", out.Month),
		slog.Int("transactions", len(txs)),
	)
	return out, nil
}
