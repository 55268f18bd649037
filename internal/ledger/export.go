package ledger

import (
	"strconv"

	"example.com/fincap/backend/internal/models"
)

// ExportHeader names the columns of ExportRecord.
var ExportHeader = []string{
	"id",
	"date",
	"description",
	"type",
	"amount",
	"signed_amount",
	"category",
	"expense_kind",
	"is_recurring",
	"next_due_date",
	"installment",
	"notes",
}

// ExportRecord раскладывает транзакцию в плоскую строку для CSV и таблиц.
func ExportRecord(tx models.Transaction) []string {
	var due, installment string
	if tx.NextDueDate != nil {
		due = tx.NextDueDate.Format(DateLayout)
	}
	if tx.Installments != nil {
		installment = strconv.Itoa(tx.Installments.Current) + "/" + strconv.Itoa(tx.Installments.Total)
	}

	return []string{
		tx.ID.String(),
		tx.Date.Format(DateLayout),
		tx.Description,
		string(tx.Type),
		tx.Amount.StringFixed(2),
		tx.SignedAmount().StringFixed(2),
		tx.CategoryName(),
		string(tx.ExpenseKind),
		strconv.FormatBool(tx.IsRecurring),
		due,
		installment,
		tx.Notes,
	}
}
