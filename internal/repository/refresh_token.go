package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/fincap/backend/internal/models"
)

// RefreshTokenRepository хранит хэши refresh-токенов в памяти процесса,
// как и остальное состояние сессии.
type RefreshTokenRepository struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]models.RefreshToken
	now    func() time.Time
}

// NewRefreshTokenRepository создает репозиторий refresh-токенов.
func NewRefreshTokenRepository() *RefreshTokenRepository {
	return &RefreshTokenRepository{
		tokens: make(map[uuid.UUID]models.RefreshToken),
		now:    time.Now,
	}
}

// Create сохраняет refresh-токен.
func (r *RefreshTokenRepository) Create(ctx context.Context, token models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[token.ID]; exists {
		return ErrConflict
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = r.now().UTC()
	}
	r.tokens[token.ID] = token
	return nil
}

// GetByID возвращает refresh-токен по идентификатору.
func (r *RefreshTokenRepository) GetByID(ctx context.Context, id uuid.UUID) (models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[id]
	if !ok {
		return models.RefreshToken{}, ErrNotFound
	}
	return token, nil
}

// Revoke помечает refresh-токен отозванным.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id uuid.UUID, replacedBy *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.revoke(id, replacedBy)
}

// Rotate заменяет старый refresh-токен на новый. Если старый уже отозван,
// новый токен не сохраняется.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldID uuid.UUID, newToken models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[newToken.ID]; exists {
		return ErrConflict
	}
	if err := r.revoke(oldID, &newToken.ID); err != nil {
		return err
	}
	if newToken.CreatedAt.IsZero() {
		newToken.CreatedAt = r.now().UTC()
	}
	r.tokens[newToken.ID] = newToken
	return nil
}

// RevokeAllForUser отзывает все активные токены пользователя и возвращает их число.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	revoked := 0
	for id, token := range r.tokens {
		if token.UserID != userID || token.RevokedAt != nil {
			continue
		}
		if r.revoke(id, nil) == nil {
			revoked++
		}
	}
	return revoked
}

// PurgeExpired удаляет токены, срок действия которых истек.
func (r *RefreshTokenRepository) PurgeExpired(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, token := range r.tokens {
		if now.After(token.ExpiresAt) {
			delete(r.tokens, id)
			removed++
		}
	}
	return removed
}

func (r *RefreshTokenRepository) revoke(id uuid.UUID, replacedBy *uuid.UUID) error {
	token, ok := r.tokens[id]
	if !ok || token.RevokedAt != nil {
		return ErrNotFound
	}

	revokedAt := r.now().UTC()
	token.RevokedAt = &revokedAt
	if replacedBy != nil {
		next := *replacedBy
		token.ReplacedBy = &next
	}
	r.tokens[id] = token
	return nil
}
