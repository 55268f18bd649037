// Package assistant проводит ход диалога с языковой моделью: проверяет лимиты,
// строит контекст из снимка, применяет запрошенные моделью проводки.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/fincap/backend/internal/ai"
	"example.com/fincap/backend/internal/analytics"
	"example.com/fincap/backend/internal/ledger"
	"example.com/fincap/backend/internal/models"
	"example.com/fincap/backend/internal/ratelimit"
	"example.com/fincap/backend/internal/repository"
)

const (
	requestTypeChat     = "chat_turn"
	requestTypeDocument = "document_analysis"

	defaultCategory     = "General"
	noResponseText      = "No response."
	transactionSavedMsg = "Transaction created."
	chatTemperature     = 0.7
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusIgnored   Status = "ignored"
	StatusFailed    Status = "failed"
)

type turnState string

const (
	stateIdle            turnState = "idle"
	stateAwaitingModel   turnState = "awaiting_model"
	stateMutationPending turnState = "mutation_pending"
	stateAwaitingFinal   turnState = "awaiting_final"
)

// Ledger is the subset of the ledger store used by the assistant.
type Ledger interface {
	AsOf() time.Time
	PostTransaction(ctx context.Context, userID uuid.UUID, draft ledger.Draft) (models.Transaction, error)
	Conversation(ctx context.Context, userID uuid.UUID) (models.Conversation, error)
	AppendMessage(ctx context.Context, userID uuid.UUID, msg models.Message) (models.Message, error)
	History(ctx context.Context, userID uuid.UUID) ([]models.Message, error)
}

type SnapshotSource interface {
	ComputeSnapshot(ctx context.Context, userID uuid.UUID, asOf time.Time) (analytics.Snapshot, error)
}

type Limiter interface {
	TryConsume() ratelimit.Decision
}

// Auditor сохраняет журнал запросов к AI. Может быть nil.
type Auditor interface {
	LogRequest(ctx context.Context, log repository.AIRequestLog) error
}

type Options struct {
	Provider string
	Model    string
	Cooldown time.Duration
	Auditor  Auditor
	Logger   *slog.Logger
}

// Reply is the in-band outcome of one chat turn. Transaction is set whenever a
// posting happened, even if the turn later failed.
type Reply struct {
	Status      Status              `json:"status"`
	Text        string              `json:"text,omitempty"`
	DataChanged bool                `json:"data_changed"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
	Message     *models.Message     `json:"message,omitempty"`
}

type Orchestrator struct {
	client    ai.Client
	ledger    Ledger
	snapshots SnapshotSource
	limiter   Limiter
	guard     *TurnGuard
	audit     auditLog
	logger    *slog.Logger
}

func NewOrchestrator(client ai.Client, store Ledger, snapshots SnapshotSource, limiter Limiter, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		client:    client,
		ledger:    store,
		snapshots: snapshots,
		limiter:   limiter,
		guard:     NewTurnGuard(opts.Cooldown),
		audit:     newAuditLog(opts, logger),
		logger:    logger,
	}
}

// History возвращает переписку; пустая переписка начинается с приветствия.
func (o *Orchestrator) History(ctx context.Context, userID uuid.UUID, lang models.Language) ([]models.Message, error) {
	history, err := o.ledger.History(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		return history, nil
	}

	user, err := o.snapshotUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	welcome, err := o.ledger.AppendMessage(ctx, userID, models.Message{
		ID:         welcomeMessageID,
		Content:    welcomeText(lang, user.DisplayName, o.ledger.AsOf()),
		SenderType: models.SenderTypeAI,
	})
	if err != nil {
		return nil, err
	}
	return []models.Message{welcome}, nil
}

// Send выполняет один ход диалога. Пока ход беседы не завершен (включая cooldown),
// повторные вызовы возвращают StatusIgnored. Отказ лимитера возвращается как
// *BackpressureError; сбои AI-сервиса превращаются в Reply со StatusFailed.
func (o *Orchestrator) Send(ctx context.Context, userID uuid.UUID, text string, lang models.Language) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, fmt.Errorf("%w: message is required", ledger.ErrValidation)
	}

	conv, err := o.ledger.Conversation(ctx, userID)
	if err != nil {
		return Reply{}, err
	}

	release, ok := o.guard.TryAcquire(conv.ID)
	if !ok {
		o.logger.Info("chat turn ignored: turn in flight",
			slog.String("user_id", userID.String()),
			slog.String("conversation_id", conv.ID.String()),
		)
		return Reply{Status: StatusIgnored}, nil
	}
	defer release()

	log := o.logger.With(
		slog.String("user_id", userID.String()),
		slog.String("conversation_id", conv.ID.String()),
	)

	o.transition(log, stateIdle, stateAwaitingModel)
	if decision := o.limiter.TryConsume(); !decision.Allowed {
		o.transition(log, stateAwaitingModel, stateIdle)
		log.Warn("chat turn rejected by rate limiter", slog.Duration("wait_hint", decision.WaitHint))
		return Reply{}, &BackpressureError{WaitHint: decision.WaitHint}
	}

	if _, err := o.ledger.AppendMessage(ctx, userID, models.Message{Content: text, SenderType: models.SenderTypeUser}); err != nil {
		return Reply{}, err
	}

	reply, last, err := o.runTurn(ctx, log, userID, text, lang)
	o.transition(log, last, stateIdle)
	if err != nil {
		return Reply{}, err
	}

	msg, err := o.ledger.AppendMessage(ctx, userID, models.Message{Content: reply.Text, SenderType: models.SenderTypeAI})
	if err != nil {
		return Reply{}, err
	}
	reply.Message = &msg
	return reply, nil
}

// runTurn возвращает ответ и состояние, в котором ход завершился.
func (o *Orchestrator) runTurn(ctx context.Context, log *slog.Logger, userID uuid.UUID, text string, lang models.Language) (Reply, turnState, error) {
	asOf := o.ledger.AsOf()

	snapshot, err := o.snapshots.ComputeSnapshot(ctx, userID, asOf)
	if err != nil {
		return Reply{}, stateAwaitingModel, err
	}

	request := ai.ChatRequest{
		System:      buildSystemInstruction(snapshot, lang),
		Turns:       []ai.Turn{{Role: ai.RoleUser, Text: text}},
		Tools:       []ai.ToolDeclaration{createTransactionDeclaration(asOf)},
		Temperature: chatTemperature,
	}

	response, raw, err := o.client.Chat(ctx, request)
	o.audit.record(ctx, userID, requestTypeChat, request.System, request, response, raw, err)
	if err != nil {
		return o.fail(log, lang, nil, err), stateAwaitingModel, nil
	}

	call, ok := findToolCall(response.ToolCalls, createTransactionTool)
	if !ok {
		answer := strings.TrimSpace(response.Text)
		if answer == "" {
			answer = noResponseText
		}
		return Reply{Status: StatusCompleted, Text: answer}, stateAwaitingModel, nil
	}

	o.transition(log, stateAwaitingModel, stateMutationPending)
	result, tx, err := o.applyToolCall(ctx, userID, call, asOf)
	if err != nil {
		return o.fail(log, lang, nil, err), stateMutationPending, nil
	}

	o.transition(log, stateMutationPending, stateAwaitingFinal)
	followUp := ai.ChatRequest{
		System: request.System,
		Turns: []ai.Turn{
			request.Turns[0],
			response.Turn,
			{Role: ai.RoleTool, ToolResult: &result},
		},
	}

	final, raw, err := o.client.Chat(ctx, followUp)
	o.audit.record(ctx, userID, requestTypeChat, followUp.System, followUp, final, raw, err)
	if err != nil {
		return o.fail(log, lang, tx, err), stateAwaitingFinal, nil
	}

	answer := strings.TrimSpace(final.Text)
	if answer == "" {
		answer = transactionSavedMsg
	}

	reply := Reply{Status: StatusCompleted, Text: answer, DataChanged: tx != nil, Transaction: tx}
	if tx != nil {
		log.Info("transaction posted by ai", slog.String("transaction_id", tx.ID.String()))
	}
	return reply, stateAwaitingFinal, nil
}

// applyToolCall проводит транзакцию по аргументам модели. Ошибки валидации
// возвращаются модели как результат инструмента; прочие ошибки прерывают ход.
func (o *Orchestrator) applyToolCall(ctx context.Context, userID uuid.UUID, call ai.ToolCall, asOf time.Time) (ai.ToolResult, *models.Transaction, error) {
	result := ai.ToolResult{ID: call.ID, Name: call.Name}

	draft, err := draftFromArgs(call.Args, asOf)
	if err == nil {
		var tx models.Transaction
		tx, err = o.ledger.PostTransaction(ctx, userID, draft)
		if err == nil {
			result.Response = map[string]any{
				"result":  "Success",
				"message": fmt.Sprintf("Transaction '%s' of %s saved successfully.", tx.Description, tx.Amount.String()),
			}
			return result, &tx, nil
		}
	}

	if !errors.Is(err, ledger.ErrValidation) {
		return result, nil, err
	}

	result.Response = map[string]any{
		"result":  "Error",
		"message": err.Error(),
	}
	return result, nil, nil
}

func draftFromArgs(args map[string]any, asOf time.Time) (ledger.Draft, error) {
	description := stringArg(args, "description")
	if description == "" {
		return ledger.Draft{}, fmt.Errorf("%w: description is required", ledger.ErrValidation)
	}

	amount, err := ledger.ParseAmount(args["amount"])
	if err != nil {
		return ledger.Draft{}, err
	}

	kind := models.TransactionType(strings.ToLower(stringArg(args, "type")))
	if !kind.Valid() {
		return ledger.Draft{}, fmt.Errorf("%w: type must be income or expense", ledger.ErrValidation)
	}

	category := stringArg(args, "category")
	if category == "" {
		category = defaultCategory
	}

	date := asOf
	if raw := stringArg(args, "date"); raw != "" {
		parsed, err := ledger.ParseDate(raw)
		if err != nil {
			return ledger.Draft{}, err
		}
		date = parsed
	}

	return ledger.Draft{
		Description: description,
		Amount:      amount,
		Type:        kind,
		Date:        date,
		Category:    category,
		ExpenseKind: models.ExpenseKindVariable,
	}, nil
}

func stringArg(args map[string]any, key string) string {
	value, ok := args[key]
	if !ok || value == nil {
		return ""
	}
	if text, ok := value.(string); ok {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func findToolCall(calls []ai.ToolCall, name string) (ai.ToolCall, bool) {
	for _, call := range calls {
		if call.Name == name {
			return call, true
		}
	}
	return ai.ToolCall{}, false
}

func (o *Orchestrator) fail(log *slog.Logger, lang models.Language, tx *models.Transaction, err error) Reply {
	log.Error("ai chat turn failed", slog.Any("error", err), slog.Bool("posted", tx != nil))
	return Reply{Status: StatusFailed, Text: failureText(lang), DataChanged: false, Transaction: tx}
}

func (o *Orchestrator) transition(log *slog.Logger, from, to turnState) {
	log.Debug("chat turn state", slog.String("from", string(from)), slog.String("to", string(to)))
}

func (o *Orchestrator) snapshotUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	snapshot, err := o.snapshots.ComputeSnapshot(ctx, userID, o.ledger.AsOf())
	if err != nil {
		return models.User{}, err
	}
	return snapshot.User, nil
}
