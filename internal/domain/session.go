package domain

import (
	"encoding/json"
	"time"
)

// Conversation is an ordered, append-only sequence of messages keyed by an opaque id.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AccessToken is the customer-account OAuth token held for a conversation.
type AccessToken struct {
	ConversationID string    `json:"conversationId"`
	AccessToken    string    `json:"accessToken"`
	RefreshToken   string    `json:"refreshToken,omitempty"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Expired reports whether the token is past its expiry at now.
func (t AccessToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// ToolDescriptor is a tool advertised by one of the tool backends.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// AuthURL is an authorization link generated for a conversation.
type AuthURL struct {
	URL            string `json:"url"`
	ConversationID string `json:"conversationId"`
}
