package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"example.com/fincap/backend/internal/models"
)

const conversationTopic = "Session"

// Conversation возвращает активную беседу пользователя, создавая ее при первом обращении.
func (s *Store) Conversation(ctx context.Context, userID uuid.UUID) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.book(userID)
	if err != nil {
		return models.Conversation{}, err
	}
	return *s.conversation(b), nil
}

// AppendMessage добавляет сообщение в переписку. Пустой ID заполняется автоматически.
func (s *Store) AppendMessage(ctx context.Context, userID uuid.UUID, msg models.Message) (models.Message, error) {
	if strings.TrimSpace(msg.Content) == "" {
		return models.Message{}, fmt.Errorf("%w: message content is required", ErrValidation)
	}
	if msg.SenderType != models.SenderTypeUser && msg.SenderType != models.SenderTypeAI {
		return models.Message{}, fmt.Errorf("%w: unknown sender type %q", ErrValidation, msg.SenderType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.book(userID)
	if err != nil {
		return models.Message{}, err
	}
	conv := s.conversation(b)

	now := s.now().UTC()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = now
	}
	msg.ConversationID = conv.ID
	msg.UserID = userID

	b.messages = append(b.messages, msg)
	conv.LastActivityAt = now
	return msg, nil
}

// History возвращает переписку без дубликатов по ID (остается первое вхождение).
func (s *Store) History(ctx context.Context, userID uuid.UUID) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := s.book(userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(b.messages))
	out := make([]models.Message, 0, len(b.messages))
	for _, msg := range b.messages {
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		out = append(out, msg)
	}
	return out, nil
}

// ClearHistory удаляет все сообщения пользователя.
func (s *Store) ClearHistory(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.book(userID)
	if err != nil {
		return err
	}
	b.messages = nil
	return nil
}

func (s *Store) conversation(b *book) *models.Conversation {
	if b.conversation == nil {
		now := s.now().UTC()
		b.conversation = &models.Conversation{
			ID:             uuid.New(),
			UserID:         b.user.ID,
			Topic:          conversationTopic,
			StartedAt:      now,
			LastActivityAt: now,
		}
	}
	return b.conversation
}
