package agent

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/shopchat/internal/domain"
	"github.com/soyeahso/shopchat/internal/llm"
)

// MessageStore persists conversation history.
type MessageStore interface {
	// AppendMessage records one message, creating the conversation on first use.
	AppendMessage(ctx context.Context, conversationID, role, content string) (domain.Message, error)

	// LoadHistory returns the conversation's messages in insertion order.
	LoadHistory(ctx context.Context, conversationID string) ([]domain.Message, error)
}

// MemoryStore is an in-memory MessageStore implementation.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	convs  map[string][]domain.Message
}

// NewMemoryStore creates an in-memory message store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string][]domain.Message)}
}

func (s *MemoryStore) AppendMessage(_ context.Context, conversationID, role, content string) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	msg := domain.Message{
		ID:             s.nextID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	s.convs[conversationID] = append(s.convs[conversationID], msg)
	return msg, nil
}

func (s *MemoryStore) LoadHistory(_ context.Context, conversationID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.convs[conversationID]
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// HistoryMessages converts stored messages into LLM messages.
func HistoryMessages(msgs []domain.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role, Content: m.Blocks()})
	}
	return out
}
