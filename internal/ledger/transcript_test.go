package ledger

import (
	"context"
	"errors"
	"testing"

	"example.com/fincap/backend/internal/models"
)

// TestHistoryFiltersDuplicateIDs проверяет удаление дубликатов сообщений.
func TestHistoryFiltersDuplicateIDs(t *testing.T) {
	store, userID := newTestStore(t)
	ctx := context.Background()

	for _, msg := range []models.Message{
		{ID: "welcome", Content: "Hi", SenderType: models.SenderTypeAI},
		{ID: "welcome", Content: "Hi again", SenderType: models.SenderTypeAI},
		{Content: "How much cash?", SenderType: models.SenderTypeUser},
	} {
		if _, err := store.AppendMessage(ctx, userID, msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	history, err := store.History(ctx, userID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Content != "Hi" {
		t.Fatalf("expected first occurrence to win, got %q", history[0].Content)
	}
	if history[1].ID == "" {
		t.Fatal("expected generated message id")
	}

	conv, _ := store.Conversation(ctx, userID)
	if history[1].ConversationID != conv.ID {
		t.Fatalf("expected message bound to conversation %s", conv.ID)
	}

	if err := store.ClearHistory(ctx, userID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	history, _ = store.History(ctx, userID)
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %d", len(history))
	}
}

// TestAppendMessageValidation проверяет отклонение пустых сообщений.
func TestAppendMessageValidation(t *testing.T) {
	store, userID := newTestStore(t)

	_, err := store.AppendMessage(context.Background(), userID, models.Message{Content: "  ", SenderType: models.SenderTypeUser})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
