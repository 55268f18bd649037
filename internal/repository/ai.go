package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AIRepository struct {
	db *pgxpool.Pool
}

type AIRequestLog struct {
	UserID          uuid.UUID
	RequestType     string
	Provider        string
	Model           string
	Prompt          string
	RequestPayload  []byte
	ResponsePayload []byte
	RawResponse     string
	Success         bool
	ErrorMessage    *string
}

type AIRequestFilter struct {
	UserID      *uuid.UUID
	Success     *bool
	RequestType *string
}

type AIRequestRecord struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	RequestType  string    `json:"request_type"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Success      bool      `json:"success"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

const aiRequestsSchema = `CREATE TABLE IF NOT EXISTS ai_requests (
	id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id          UUID NOT NULL,
	request_type     TEXT NOT NULL,
	provider         TEXT NOT NULL,
	model            TEXT NOT NULL,
	prompt           TEXT,
	request_payload  JSONB,
	response_payload JSONB,
	raw_response     TEXT,
	success          BOOLEAN NOT NULL,
	error_message    TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// NewAIRepository создает репозиторий для журнала AI-запросов.
func NewAIRepository(db *pgxpool.Pool) *AIRepository {
	return &AIRepository{db: db}
}

// EnsureSchema создает таблицу журнала, если ее еще нет.
func (r *AIRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, aiRequestsSchema); err != nil {
		return fmt.Errorf("create ai_requests: %w", err)
	}
	return nil
}

// LogRequest сохраняет лог AI-запроса.
func (r *AIRepository) LogRequest(ctx context.Context, log AIRequestLog) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ai_requests
		 (user_id, request_type, provider, model, prompt, request_payload, response_payload, raw_response, success, error_message)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::jsonb, NULLIF($7, '')::jsonb, $8, $9, $10)`,
		log.UserID,
		log.RequestType,
		log.Provider,
		log.Model,
		log.Prompt,
		string(log.RequestPayload),
		string(log.ResponsePayload),
		log.RawResponse,
		log.Success,
		log.ErrorMessage,
	)
	return err
}

// ListRecent возвращает последние записи журнала с фильтрацией.
func (r *AIRepository) ListRecent(ctx context.Context, filter AIRequestFilter, limit int) ([]AIRequestRecord, error) {
	where, args := buildAIRequestWhere(filter)
	query := fmt.Sprintf(
		"SELECT id, user_id, request_type, provider, model, success, error_message, created_at FROM ai_requests%s ORDER BY created_at DESC LIMIT $%d",
		where, len(args)+1,
	)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]AIRequestRecord, 0)
	for rows.Next() {
		var record AIRequestRecord
		if err := rows.Scan(
			&record.ID,
			&record.UserID,
			&record.RequestType,
			&record.Provider,
			&record.Model,
			&record.Success,
			&record.ErrorMessage,
			&record.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

func buildAIRequestWhere(filter AIRequestFilter) (string, []any) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 3)

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Success != nil {
		args = append(args, *filter.Success)
		clauses = append(clauses, fmt.Sprintf("success = $%d", len(args)))
	}
	if filter.RequestType != nil {
		args = append(args, *filter.RequestType)
		clauses = append(clauses, fmt.Sprintf("request_type = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
