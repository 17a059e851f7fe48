package agent

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/shopchat/internal/domain"
	"github.com/soyeahso/shopchat/internal/hooks"
	"github.com/soyeahso/shopchat/internal/llm"
	"github.com/soyeahso/shopchat/internal/logging"
	"github.com/soyeahso/shopchat/internal/stream"
)

// ErrEmptyMessage is returned for a chat request without a message.
var ErrEmptyMessage = errors.New("message is required")

// ChatRequest is the body of a chat request.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	PromptType     string `json:"prompt_type,omitempty"`
}

// Chat answers one user message end to end: it announces the conversation,
// records the message, runs the turn and reports the outcome.
type Chat struct {
	engine *Engine
	store  MessageStore
	tools  ToolConnector
	hooks  *hooks.Manager
	now    func() time.Time
	log    *logging.Logger
}

// ChatOption configures a Chat.
type ChatOption func(*Chat)

// WithChatHooks sets the hook manager notified of turn start and end.
func WithChatHooks(m *hooks.Manager) ChatOption {
	return func(c *Chat) { c.hooks = m }
}

// NewChat creates a chat handler. A nil connector offers no tools.
func NewChat(engine *Engine, store MessageStore, tools ToolConnector, log *logging.Logger, opts ...ChatOption) *Chat {
	if tools == nil {
		tools = ToolConnectorFunc(func(context.Context, string) ToolSession { return NoTools{} })
	}
	c := &Chat{
		engine: engine,
		store:  store,
		tools:  tools,
		now:    time.Now,
		log:    log.Sub("chat"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewConversationID returns a fresh conversation id: Unix milliseconds in
// decimal.
func NewConversationID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

// Handle runs one turn for req. Progress is reported through emit; a
// returned error is fatal for the turn and has not been reported yet.
func (c *Chat) Handle(ctx context.Context, req ChatRequest, emit Emitter) error {
	if strings.TrimSpace(req.Message) == "" {
		return ErrEmptyMessage
	}

	convID := req.ConversationID
	if convID == "" {
		convID = NewConversationID(c.now())
	}
	promptType := c.engine.prompts.Resolve(req.PromptType)
	log := c.log.With("conversation", convID)

	emit.Emit(stream.IDEvent(convID))
	c.hooks.Emit(ctx, hooks.EventTurnStart, map[string]any{
		"conversation": convID,
		"prompt_type":  promptType,
	})

	tools := c.tools.Connect(ctx, convID)

	history := c.loadHistory(ctx, convID, req.Message, log)

	turn := &Turn{ConversationID: convID, PromptType: promptType, History: history}
	result, err := c.engine.RunTurn(ctx, turn, tools, emit)
	if err != nil {
		c.hooks.EmitAsync(ctx, hooks.EventTurnEnd, map[string]any{
			"conversation": convID,
			"rounds":       result.Rounds,
			"error":        err.Error(),
		})
		return err
	}

	emit.Emit(stream.Signal(stream.TypeEndTurn))
	if len(result.Products) > 0 {
		emit.Emit(stream.ProductsEvent(result.Products))
	}

	c.hooks.EmitAsync(ctx, hooks.EventTurnEnd, map[string]any{
		"conversation": convID,
		"rounds":       result.Rounds,
		"tool_calls":   result.ToolCalls,
		"products":     len(result.Products),
		"stop_reason":  result.StopReason,
	})
	return nil
}

// loadHistory persists the user message and returns the full history. When
// the store misbehaves the message is still part of the in-memory history.
func (c *Chat) loadHistory(ctx context.Context, convID, message string, log *logging.Logger) []llm.Message {
	user := llm.Message{Role: domain.RoleUser, Content: []domain.ContentBlock{domain.TextBlock(message)}}

	stored, appendErr := domain.EncodeText(message)
	if appendErr == nil {
		_, appendErr = c.store.AppendMessage(ctx, convID, domain.RoleUser, stored)
	}
	if appendErr != nil {
		log.Error().Err(appendErr).Msg("failed to persist user message")
	}

	msgs, err := c.store.LoadHistory(ctx, convID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load history, continuing with this message only")
		return []llm.Message{user}
	}

	history := HistoryMessages(msgs)
	if appendErr != nil || len(history) == 0 {
		history = append(history, user)
	}
	return history
}
