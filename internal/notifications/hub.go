package notifications

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventConnected     = "connected"
	EventLedgerUpdated = "ledger_updated"
)

// Источники изменения журнала в событии ledger_updated.
const (
	SourceManual    = "manual"
	SourceBulk      = "bulk_import"
	SourceAssistant = "assistant"
)

type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// LedgerUpdate сообщает клиенту, что снимок нужно запросить заново.
type LedgerUpdate struct {
	Source         string      `json:"source"`
	TransactionIDs []uuid.UUID `json:"transaction_ids"`
}

// Publisher доставляет события пользователя: в SSE-хаб, брокер сообщений и т.д.
type Publisher interface {
	Publish(userID uuid.UUID, event Event)
}

// Fanout рассылает событие всем непустым получателям.
type Fanout []Publisher

// Publish проставляет общее время события и передает его каждому получателю.
func (f Fanout) Publish(userID uuid.UUID, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	for _, publisher := range f {
		if publisher != nil {
			publisher.Publish(userID, event)
		}
	}
}

// PublishLedgerUpdate публикует ledger_updated; пустой список транзакций не публикуется.
func PublishLedgerUpdate(publisher Publisher, userID uuid.UUID, source string, ids ...uuid.UUID) {
	if publisher == nil || len(ids) == 0 {
		return
	}

	publisher.Publish(userID, Event{
		Type: EventLedgerUpdated,
		Data: LedgerUpdate{Source: source, TransactionIDs: ids},
	})
}

type Hub struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]map[chan Event]struct{}
}

// NewHub создает хаб для SSE-подписок.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[uuid.UUID]map[chan Event]struct{}),
	}
}

// Subscribe подписывает пользователя на события и возвращает канал и функцию отписки.
func (h *Hub) Subscribe(userID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, 10)

	h.mu.Lock()
	defer h.mu.Unlock()

	userSubs, ok := h.subscribers[userID]
	if !ok {
		userSubs = make(map[chan Event]struct{})
		h.subscribers[userID] = userSubs
	}
	userSubs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			if subs, exists := h.subscribers[userID]; exists {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(h.subscribers, userID)
				}
			}
			close(ch)
		})
	}
}

// Publish отправляет событие всем подписчикам пользователя. Медленный подписчик пропускает событие.
func (h *Hub) Publish(userID uuid.UUID, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	subs, ok := h.subscribers[userID]
	if !ok {
		return
	}

	for ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers возвращает число активных подписок пользователя.
func (h *Hub) Subscribers(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscribers[userID])
}
