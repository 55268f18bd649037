package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"example.com/fincap/backend/internal/notifications"
)

func TestNewMessageCarriesLedgerUpdate(t *testing.T) {
	userID := uuid.New()
	txID := uuid.New()
	stamp := time.Date(2025, 11, 18, 10, 0, 0, 0, time.UTC)

	msg, err := NewMessage(userID, notifications.Event{
		Type:      notifications.EventLedgerUpdated,
		Timestamp: stamp,
		Data:      notifications.LedgerUpdate{Source: notifications.SourceManual, TransactionIDs: []uuid.UUID{txID}},
	})
	if err != nil {
		t.Fatalf("new message: %v", err)
	}

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	decoded, err := MessageFromJSON(body)
	if err != nil {
		t.Fatalf("from json: %v", err)
	}

	if decoded.UserID != userID || !decoded.Timestamp.Equal(stamp) {
		t.Fatalf("unexpected envelope %+v", decoded)
	}

	var update notifications.LedgerUpdate
	if err := json.Unmarshal(decoded.Data, &update); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if update.Source != notifications.SourceManual || update.TransactionIDs[0] != txID {
		t.Fatalf("unexpected update %+v", update)
	}
}

func TestMessageFromJSONRejectsGarbage(t *testing.T) {
	if _, err := MessageFromJSON([]byte("not json")); err == nil {
		t.Fatal("expected error")
	}
}
