package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/shopchat/internal/domain"
	"github.com/soyeahso/shopchat/internal/hooks"
	"github.com/soyeahso/shopchat/internal/llm"
	"github.com/soyeahso/shopchat/internal/logging"
	"github.com/soyeahso/shopchat/internal/products"
	"github.com/soyeahso/shopchat/internal/stream"
)

// ErrToolLoopLimit is returned when a turn exceeds its tool round budget.
var ErrToolLoopLimit = domain.ErrToolLoopLimit

// Emitter receives the client-visible events of a turn.
type Emitter interface {
	Emit(ev stream.Event)
}

// EngineConfig configures the turn engine.
type EngineConfig struct {
	Model             string
	MaxTokens         int
	MaxToolRounds     int
	MaxProducts       int
	ProductSearchTool string
}

// Turn is the state of one user message being answered. History is extended
// in place as the turn progresses.
type Turn struct {
	ConversationID string
	PromptType     string
	History        []llm.Message
}

// TurnResult is the outcome of a completed turn.
type TurnResult struct {
	StopReason string             `json:"stopReason"`
	Rounds     int                `json:"rounds"`
	ToolCalls  int                `json:"toolCalls"`
	Products   []products.Product `json:"products,omitempty"`
	Usage      llm.Usage          `json:"usage"`
	Duration   time.Duration      `json:"duration"`
}

// Engine drives the LLM / tool exchange for one turn.
type Engine struct {
	cfg       EngineConfig
	client    llm.Client
	store     MessageStore
	prompts   *PromptCatalog
	extractor *products.Extractor
	hooks     *hooks.Manager
	log       *logging.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineHooks sets the hook manager notified of tool calls.
func WithEngineHooks(m *hooks.Manager) EngineOption {
	return func(e *Engine) { e.hooks = m }
}

// NewEngine creates a turn engine.
func NewEngine(cfg EngineConfig, client llm.Client, store MessageStore, prompts *PromptCatalog, log *logging.Logger, opts ...EngineOption) *Engine {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 10
	}
	if cfg.ProductSearchTool == "" {
		cfg.ProductSearchTool = "search_shop_catalog"
	}
	log = log.Sub("agent")
	e := &Engine{
		cfg:       cfg,
		client:    client,
		store:     store,
		prompts:   prompts,
		extractor: products.NewExtractor(cfg.MaxProducts, log),
		log:       log,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RunTurn repeats the completion / tool call cycle until the model stops
// asking for tools. Every assistant message and tool result is appended to
// t.History and persisted. An LLM failure aborts the turn; whatever was
// persisted before it stays valid for the next turn.
func (e *Engine) RunTurn(ctx context.Context, t *Turn, tools ToolSession, emit Emitter) (TurnResult, error) {
	start := time.Now()
	var result TurnResult

	if len(t.History) == 0 {
		return result, errors.New("turn has no history")
	}

	system := e.prompts.System(t.PromptType)
	log := e.log.With("conversation", t.ConversationID)

	for round := 1; round <= e.cfg.MaxToolRounds; round++ {
		result.Rounds = round

		resp, err := e.complete(ctx, llm.CompletionRequest{
			Model:     e.cfg.Model,
			System:    system,
			Messages:  t.History,
			Tools:     tools.Tools(),
			MaxTokens: e.cfg.MaxTokens,
		}, emit)
		if err != nil {
			return result, fmt.Errorf("round %d: %w", round, err)
		}
		result.StopReason = resp.StopReason
		result.Usage.InputTokens += resp.Usage.InputTokens
		result.Usage.OutputTokens += resp.Usage.OutputTokens

		if len(resp.Content) > 0 {
			e.record(ctx, t, domain.RoleAssistant, resp.Content)
		}
		emit.Emit(stream.Signal(stream.TypeMessageComplete))

		uses := resp.ToolUses()
		if len(uses) == 0 {
			result.Duration = time.Since(start)
			log.Info().
				Str("stop", resp.StopReason).
				Int("rounds", round).
				Int("toolCalls", result.ToolCalls).
				Int("products", len(result.Products)).
				Int("inputTokens", result.Usage.InputTokens).
				Int("outputTokens", result.Usage.OutputTokens).
				Dur("duration", result.Duration).
				Msg("turn complete")
			return result, nil
		}

		log.Debug().Int("round", round).Int("toolCalls", len(uses)).Msg("executing tool calls")
		for _, use := range uses {
			found := e.runTool(ctx, t, tools, use, emit)
			result.Products = append(result.Products, found...)
			result.ToolCalls++
		}
	}

	return result, fmt.Errorf("%w after %d rounds", ErrToolLoopLimit, e.cfg.MaxToolRounds)
}

// complete streams one completion, forwarding text as chunk events.
func (e *Engine) complete(ctx context.Context, req llm.CompletionRequest, emit Emitter) (*llm.CompletionResponse, error) {
	ch, err := e.client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	var (
		resp      *llm.CompletionResponse
		streamErr error
	)
	for ev := range ch {
		switch ev.Type {
		case "delta":
			if ev.Content != "" {
				emit.Emit(stream.ChunkEvent(ev.Content))
			}
		case "done":
			resp = ev.Response
		case "error":
			streamErr = ev.Err
		}
	}

	if streamErr != nil {
		return nil, streamErr
	}
	if resp == nil {
		return nil, errors.New("stream ended without a response")
	}
	return resp, nil
}

// runTool executes one tool_use block and folds its result into history.
// It returns any products found in a catalog search result.
func (e *Engine) runTool(ctx context.Context, t *Turn, tools ToolSession, use domain.ContentBlock, emit Emitter) []products.Product {
	e.hooks.Emit(ctx, hooks.EventToolCall, map[string]any{
		"conversation": t.ConversationID,
		"tool":         use.Name,
	})

	res := tools.CallTool(ctx, use.Name, use.Input)
	e.record(ctx, t, domain.RoleUser, []domain.ContentBlock{
		domain.ToolResultBlock(use.ID, res.ToolResultContent()),
	})

	var found []products.Product
	switch {
	case res.AuthRequired():
		e.log.Info().Str("conversation", t.ConversationID).Str("tool", use.Name).Msg("customer authorization required")
		emit.Emit(stream.Signal(stream.TypeAuthRequired))
		e.hooks.Emit(ctx, hooks.EventAuthRequired, map[string]any{
			"conversation": t.ConversationID,
			"tool":         use.Name,
		})
	case res.Error != nil:
		e.log.Warn().Str("conversation", t.ConversationID).Str("tool", use.Name).Str("error", res.Error.Data).Msg("tool call failed")
	case use.Name == e.cfg.ProductSearchTool:
		found = e.extractor.Extract(res.Content)
	}

	emit.Emit(stream.Signal(stream.TypeNewMessage))
	return found
}

// record appends a message to the turn history and persists it. Persistence
// failures are logged; the in-memory history stays authoritative for the
// rest of the turn.
func (e *Engine) record(ctx context.Context, t *Turn, role string, blocks []domain.ContentBlock) {
	t.History = append(t.History, llm.Message{Role: role, Content: blocks})

	content, err := domain.EncodeBlocks(blocks)
	if err == nil {
		_, err = e.store.AppendMessage(ctx, t.ConversationID, role, content)
	}
	if err != nil {
		e.log.Error().Err(err).Str("conversation", t.ConversationID).Str("role", role).Msg("failed to persist message")
	}
}
