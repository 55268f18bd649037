package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/fincap/backend/internal/models"
)

// TestLookupAndExportRecord проверяет выборку по ID и плоскую строку выгрузки.
func TestLookupAndExportRecord(t *testing.T) {
	store, userID := newTestStore(t)
	ctx := context.Background()

	first, err := store.PostTransaction(ctx, userID, Draft{Description: "Invoice", Amount: decimal.NewFromInt(900), Type: models.TransactionTypeIncome, Category: "Sales"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	second, err := store.PostTransaction(ctx, userID, Draft{Amount: decimal.RequireFromString("12.5"), Type: models.TransactionTypeExpense})
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	found, err := store.Lookup(ctx, userID, []uuid.UUID{second.ID, uuid.New(), first.ID})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(found) != 2 || found[0].ID != second.ID || found[1].ID != first.ID {
		t.Fatalf("expected request order with unknown id skipped, got %+v", found)
	}

	record := ExportRecord(found[0])
	if len(record) != len(ExportHeader) {
		t.Fatalf("record has %d columns, header %d", len(record), len(ExportHeader))
	}
	if record[1] != "2025-11-18" || record[2] != defaultDescription || record[5] != "-12.50" || record[6] != models.UncategorizedLabel {
		t.Fatalf("unexpected record %v", record)
	}
	if record[8] != "false" || record[9] != "" || record[10] != "" {
		t.Fatalf("unexpected scheduling columns %v", record)
	}
}
