// Package stream delivers turn events to the chat client and normalizes
// fatal errors into client-visible events.
package stream

import (
	"errors"
	"strings"

	"github.com/soyeahso/shopchat/internal/domain"
	"github.com/soyeahso/shopchat/internal/llm"
	"github.com/soyeahso/shopchat/internal/products"
)

// Event types sent to the client.
const (
	TypeID                = "id"
	TypeChunk             = "chunk"
	TypeMessageComplete   = "message_complete"
	TypeNewMessage        = "new_message"
	TypeAuthRequired      = "auth_required"
	TypeEndTurn           = "end_turn"
	TypeProductResults    = "product_results"
	TypeError             = "error"
	TypeRateLimitExceeded = "rate_limit_exceeded"
)

// Event is one frame on the client stream.
type Event struct {
	Type           string             `json:"type"`
	ConversationID string             `json:"conversation_id,omitempty"`
	Chunk          string             `json:"chunk,omitempty"`
	Products       []products.Product `json:"products,omitempty"`
	Error          string             `json:"error,omitempty"`
	Details        string             `json:"details,omitempty"`
}

// IDEvent announces the conversation id.
func IDEvent(conversationID string) Event {
	return Event{Type: TypeID, ConversationID: conversationID}
}

// ChunkEvent carries one text fragment.
func ChunkEvent(text string) Event {
	return Event{Type: TypeChunk, Chunk: text}
}

// ProductsEvent carries the product cards collected during a turn.
func ProductsEvent(items []products.Product) Event {
	return Event{Type: TypeProductResults, Products: items}
}

// Signal returns a payload-free event of the given type.
func Signal(eventType string) Event {
	return Event{Type: eventType}
}

// Terminal reports whether the event ends the stream with a failure.
func (e Event) Terminal() bool {
	return e.Type == TypeError || e.Type == TypeRateLimitExceeded
}

// Classify maps a fatal turn error onto the event shown to the client.
func Classify(err error) Event {
	msg := err.Error()
	status := 0
	var perr *llm.ProviderError
	if errors.As(err, &perr) {
		status = perr.Code
	}

	switch {
	case errors.Is(err, domain.ErrToolLoopLimit):
		return Event{Type: TypeError, Error: "Tool loop limit exceeded"}
	case status == 401 || strings.Contains(msg, "auth") || strings.Contains(msg, "key"):
		return Event{
			Type:    TypeError,
			Error:   "Authentication failed with Claude API",
			Details: "Please check your API key in environment variables",
		}
	case status == 429 || status == 529 || strings.Contains(msg, "Overloaded"):
		return Event{
			Type:    TypeRateLimitExceeded,
			Error:   "Rate limit exceeded",
			Details: "Please try again later",
		}
	default:
		return Event{
			Type:    TypeError,
			Error:   "Failed to get response from Claude",
			Details: msg,
		}
	}
}
