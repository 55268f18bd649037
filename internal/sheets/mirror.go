// Package sheets зеркалирует проводки журнала в Google Sheets.
package sheets

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/fincap/backend/internal/ledger"
	"example.com/fincap/backend/internal/models"
	"example.com/fincap/backend/internal/notifications"
)

// Appender добавляет строки в конец листа.
type Appender interface {
	AppendRows(ctx context.Context, rows [][]string) error
}

// Reader is the part of the ledger the mirror reads back.
type Reader interface {
	User(ctx context.Context, userID uuid.UUID) (models.User, error)
	Lookup(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.Transaction, error)
}

// Header is the first row of a mirrored sheet.
var Header = append([]string{"user_email", "source", "posted_at"}, ledger.ExportHeader...)

// Mirror получает ledger_updated из Fanout и дописывает проводки в таблицу.
// Запись идет в фоне: Publish не блокирует обработчик запроса.
type Mirror struct {
	reader  Reader
	sheet   Appender
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewMirror(reader Reader, sheet Appender, timeout time.Duration, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Mirror{reader: reader, sheet: sheet, timeout: timeout, logger: logger}
}

// Publish реализует notifications.Publisher. Остальные типы событий игнорируются.
func (m *Mirror) Publish(userID uuid.UUID, event notifications.Event) {
	if event.Type != notifications.EventLedgerUpdated {
		return
	}
	update, ok := event.Data.(notifications.LedgerUpdate)
	if !ok || len(update.TransactionIDs) == 0 {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.sync(userID, update, event.Timestamp); err != nil {
			m.logger.Warn("sheets mirror failed",
				slog.String("user_id", userID.String()),
				slog.String("source", update.Source),
				slog.Int("transactions", len(update.TransactionIDs)),
				slog.Any("error", err),
			)
		}
	}()
}

// Wait дожидается завершения фоновых записей.
func (m *Mirror) Wait() {
	m.wg.Wait()
}

// Drain is Wait bounded by ctx; it is called once the HTTP server stops accepting requests.
func (m *Mirror) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mirror) sync(userID uuid.UUID, update notifications.LedgerUpdate, at time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	user, err := m.reader.User(ctx, userID)
	if err != nil {
		return err
	}
	txs, err := m.reader.Lookup(ctx, userID, update.TransactionIDs)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		return nil
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	rows := make([][]string, 0, len(txs))
	for _, tx := range txs {
		row := append([]string{user.Email, update.Source, at.Format(time.RFC3339)}, ledger.ExportRecord(tx)...)
		rows = append(rows, row)
	}

	if err := m.sheet.AppendRows(ctx, rows); err != nil {
		return err
	}
	m.logger.Debug("sheets mirror appended", slog.String("user_id", userID.String()), slog.Int("rows", len(rows)))
	return nil
}
