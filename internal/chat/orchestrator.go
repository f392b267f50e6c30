// ABOUTME: Orchestrator drives the bounded model-tool loop for one chat turn
// ABOUTME: User input is persisted before the model call so it is never lost

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/NEARBuilders/cyborg-gateway/internal/model"
	"github.com/NEARBuilders/cyborg-gateway/internal/store"
)

// Validation and loop bounds
const (
	MaxMessageLength = 10000
	TitleMaxLength   = 100

	DefaultMaxIterations = 5
	DefaultHistoryWindow = 20
)

// Orchestrator errors
var (
	ErrEmptyMessage   = errors.New("message must not be empty")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
	ErrForbidden      = errors.New("conversation belongs to another account")
)

// ConversationStore defines what the orchestrator needs from storage
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *store.Conversation) error
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	SaveMessage(ctx context.Context, msg *store.Message) error
	GetRecentMessages(ctx context.Context, conversationID string, limit int) ([]*store.Message, error)
}

// ModelClient defines what the orchestrator needs from the model backend
type ModelClient interface {
	Complete(ctx context.Context, messages []model.ChatMessage, tools []model.ToolDefinition) (*model.ChatMessage, error)
	Stream(ctx context.Context, messages []model.ChatMessage, tools []model.ToolDefinition) (<-chan model.Delta, <-chan error)
}

// ToolExecutor defines what the orchestrator needs from the tool registry
type ToolExecutor interface {
	Definitions() []model.ToolDefinition
	Execute(ctx context.Context, name string, args string) string
}

// Orchestrator builds model context, drives the tool-calling loop and
// persists conversation turns.
type Orchestrator struct {
	store         ConversationStore
	model         ModelClient
	tools         ToolExecutor
	prompts       PromptBuilder
	logger        *slog.Logger
	maxIterations int
	historyWindow int
}

// Options tune the orchestrator's loop bound and history window
type Options struct {
	MaxIterations int
	HistoryWindow int
}

// New creates an orchestrator
func New(st ConversationStore, mc ModelClient, te ToolExecutor, pb PromptBuilder, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	return &Orchestrator{
		store:         st,
		model:         mc,
		tools:         te,
		prompts:       pb,
		logger:        logger.With("component", "chat"),
		maxIterations: opts.MaxIterations,
		historyWindow: opts.HistoryWindow,
	}
}

// Result is the outcome of a non-streaming turn
type Result struct {
	ConversationID string
	Message        *store.Message
}

// turn holds the resolved conversation and built model context for one turn
type turn struct {
	conv     *store.Conversation
	messages []model.ChatMessage
}

// ProcessMessage runs one non-streaming turn: resolve the conversation,
// persist the user message, drive the tool loop, persist and return the
// assistant reply.
func (o *Orchestrator) ProcessMessage(ctx context.Context, accountID, text, conversationID string) (*Result, error) {
	t, err := o.prepareTurn(ctx, accountID, text, conversationID)
	if err != nil {
		return nil, err
	}

	defs := o.tools.Definitions()
	msgs := t.messages
	var total strings.Builder

	for i := 0; i < o.maxIterations; i++ {
		resp, err := o.model.Complete(ctx, msgs, defs)
		if err != nil {
			return nil, err
		}

		total.WriteString(resp.Content)
		if len(resp.ToolCalls) == 0 {
			break
		}

		o.logger.Debug("model requested tools",
			"conversation_id", t.conv.ID,
			"iteration", i,
			"calls", len(resp.ToolCalls))
		msgs = o.appendToolRound(ctx, msgs, resp.Content, resp.ToolCalls)
	}

	msg, err := o.persistAssistant(ctx, t.conv.ID, total.String())
	if err != nil {
		return nil, err
	}

	return &Result{ConversationID: t.conv.ID, Message: msg}, nil
}

// ProcessMessageStream runs one streaming turn. Errors detected before any
// event is produced are returned directly; later failures become a terminal
// error event. The returned channel is closed after the terminal event.
func (o *Orchestrator) ProcessMessageStream(ctx context.Context, accountID, text, conversationID string) (<-chan StreamEvent, error) {
	t, err := o.prepareTurn(ctx, accountID, text, conversationID)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent, 16)
	go o.runStream(ctx, t, events)
	return events, nil
}

// runStream drives the tool loop for a streaming turn, pushing events into
// the channel and closing it after the terminal event.
func (o *Orchestrator) runStream(ctx context.Context, t *turn, events chan<- StreamEvent) {
	defer close(events)

	var seq int
	nextID := func() string {
		seq++
		return strconv.Itoa(seq)
	}
	emit := func(ev StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		o.logger.Error("streaming turn failed", "conversation_id", t.conv.ID, "error", err)
		emit(StreamEvent{Type: EventError, ID: nextID(), Data: ErrorData{Message: userFacingMessage(err)}})
	}

	defs := o.tools.Definitions()
	msgs := t.messages
	var total strings.Builder

	for i := 0; i < o.maxIterations; i++ {
		deltas, errs := o.model.Stream(ctx, msgs, defs)

		var fragments []model.ToolCallFragment
		var iterText strings.Builder

		for d := range deltas {
			if d.Content != "" {
				total.WriteString(d.Content)
				iterText.WriteString(d.Content)
				if !emit(StreamEvent{Type: EventChunk, ID: nextID(), Data: ChunkData{Content: d.Content}}) {
					return
				}
			}
			for _, tc := range d.ToolCalls {
				fragments = model.MergeFragment(fragments, tc)
			}
		}

		if err := <-errs; err != nil {
			fail(err)
			return
		}

		if len(fragments) == 0 {
			break
		}

		calls, err := model.FinalizeFragments(fragments)
		if err != nil {
			fail(err)
			return
		}

		o.logger.Debug("model requested tools",
			"conversation_id", t.conv.ID,
			"iteration", i,
			"calls", len(calls))
		msgs = o.appendToolRound(ctx, msgs, iterText.String(), calls)
	}

	msg, err := o.persistAssistant(ctx, t.conv.ID, total.String())
	if err != nil {
		fail(err)
		return
	}

	emit(StreamEvent{
		Type: EventComplete,
		ID:   nextID(),
		Data: CompleteData{ConversationID: t.conv.ID, MessageID: msg.ID},
	})
}

// prepareTurn validates input, resolves or creates the conversation, builds
// the model context and persists the user message. The user message is
// written before any model call so input survives backend failures.
func (o *Orchestrator) prepareTurn(ctx context.Context, accountID, text, conversationID string) (*turn, error) {
	length := utf8.RuneCountInString(text)
	if length == 0 {
		return nil, ErrEmptyMessage
	}
	if length > MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	now := time.Now()

	// Resolve the conversation. A supplied but unknown ID is replaced with
	// a freshly minted one.
	var conv *store.Conversation
	if conversationID != "" {
		existing, err := o.store.GetConversation(ctx, conversationID)
		switch {
		case err == nil:
			if existing.OwnerAccountID != accountID {
				return nil, ErrForbidden
			}
			conv = existing
		case errors.Is(err, store.ErrNotFound):
			// fall through to creation
		default:
			return nil, fmt.Errorf("resolving conversation: %w", err)
		}
	}

	isNew := conv == nil
	if isNew {
		conv = &store.Conversation{
			ID:             uuid.New().String(),
			OwnerAccountID: accountID,
			Title:          truncateRunes(text, TitleMaxLength),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}

	// Build context from history before the new user message is persisted:
	// system prompt, recent history in chronological order, then the new
	// user message.
	msgs := []model.ChatMessage{{
		Role:    model.RoleSystem,
		Content: o.prompts.SystemPrompt(ctx, accountID),
	}}

	if !isNew {
		history, err := o.store.GetRecentMessages(ctx, conv.ID, o.historyWindow)
		if err != nil {
			return nil, fmt.Errorf("loading history: %w", err)
		}
		for _, m := range history {
			if m.Role != store.RoleUser && m.Role != store.RoleAssistant {
				continue
			}
			msgs = append(msgs, model.ChatMessage{Role: m.Role, Content: m.Content})
		}
	}

	msgs = append(msgs, model.ChatMessage{Role: model.RoleUser, Content: text})

	// Record first, then act: the conversation row and user message are
	// persisted before the model is invoked.
	if isNew {
		if err := o.store.CreateConversation(ctx, conv); err != nil {
			return nil, fmt.Errorf("creating conversation: %w", err)
		}
		o.logger.Debug("conversation created", "conversation_id", conv.ID, "owner", accountID)
	}

	userMsg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           store.RoleUser,
		Content:        text,
		CreatedAt:      now,
	}
	if err := o.store.SaveMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("recording user message: %w", err)
	}
	if !isNew {
		if err := o.store.TouchConversation(ctx, conv.ID, now); err != nil {
			return nil, fmt.Errorf("bumping conversation: %w", err)
		}
	}

	o.logger.Debug("user message recorded",
		"conversation_id", conv.ID,
		"message_id", userMsg.ID)

	return &turn{conv: conv, messages: msgs}, nil
}

// appendToolRound extends the in-memory context with the assistant's tool
// calls and one tool-role result per call, in call-emission order. Tool
// failures are serialized by the executor, so execution never breaks the loop.
func (o *Orchestrator) appendToolRound(ctx context.Context, msgs []model.ChatMessage, content string, calls []model.ToolCall) []model.ChatMessage {
	msgs = append(msgs, model.ChatMessage{
		Role:      model.RoleAssistant,
		Content:   content,
		ToolCalls: calls,
	})

	for _, call := range calls {
		result := o.tools.Execute(ctx, call.Function.Name, call.Function.Arguments)
		msgs = append(msgs, model.ChatMessage{
			Role:       model.RoleTool,
			ToolCallID: call.ID,
			Content:    result,
		})
	}

	return msgs
}

// persistAssistant writes the final assistant message and bumps the
// conversation in the same logical step.
func (o *Orchestrator) persistAssistant(ctx context.Context, conversationID, content string) (*store.Message, error) {
	now := time.Now()
	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           store.RoleAssistant,
		Content:        content,
		CreatedAt:      now,
	}
	if err := o.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("recording assistant message: %w", err)
	}
	if err := o.store.TouchConversation(ctx, conversationID, now); err != nil {
		return nil, fmt.Errorf("bumping conversation: %w", err)
	}

	o.logger.Debug("assistant message recorded",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"content_len", len(content))
	return msg, nil
}

// truncateRunes shortens s to at most max runes
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
