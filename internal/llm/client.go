// Package llm defines the completion client interface and the Anthropic
// Messages API provider used by the turn engine.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/soyeahso/shopchat/internal/domain"
)

// Stop reasons reported by the Messages API.
const (
	StopEndTurn      = "end_turn"
	StopToolUse      = "tool_use"
	StopMaxTokens    = "max_tokens"
	StopStopSequence = "stop_sequence"
)

// Message is a single turn sent to the model.
type Message struct {
	Role    string                `json:"role"`
	Content []domain.ContentBlock `json:"content"`
}

// CompletionRequest is the input to a Stream call.
type CompletionRequest struct {
	Model       string                  `json:"model,omitempty"`
	System      string                  `json:"system,omitempty"`
	Messages    []Message               `json:"messages"`
	Tools       []domain.ToolDescriptor `json:"tools,omitempty"`
	MaxTokens   int                     `json:"maxTokens,omitempty"`
	Temperature *float64                `json:"temperature,omitempty"`
}

// CompletionResponse is the assembled assistant message at the end of a stream.
type CompletionResponse struct {
	ID         string                `json:"id,omitempty"`
	Content    []domain.ContentBlock `json:"content"`
	StopReason string                `json:"stopReason,omitempty"`
	Usage      Usage                 `json:"usage"`
	Model      string                `json:"model,omitempty"`
	Duration   time.Duration         `json:"duration,omitempty"`
}

// ToolUses returns the tool_use blocks in the order the model emitted them.
func (r *CompletionResponse) ToolUses() []domain.ContentBlock {
	var uses []domain.ContentBlock
	for _, b := range r.Content {
		if b.Type == domain.BlockToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}

// Text concatenates the text blocks of the response.
func (r *CompletionResponse) Text() string {
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == domain.BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// StreamEvent is a chunk from a streaming completion.
type StreamEvent struct {
	Type    string `json:"type"`              // "delta", "done", "error"
	Content string `json:"content,omitempty"` // text delta
	Err     error  `json:"-"`                 // set when Type is "error"

	// Final fields (type="done")
	Response *CompletionResponse `json:"response,omitempty"`
}

// Client is the interface LLM providers implement.
type Client interface {
	// Stream sends a request and returns a channel of streaming events. The
	// channel ends with exactly one "done" or "error" event unless ctx is
	// cancelled first.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)

	// Name returns the provider name (e.g., "claude").
	Name() string
}
