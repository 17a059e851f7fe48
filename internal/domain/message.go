package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// Role constants for conversation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content block types.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ContentBlock is one typed element of a message's content.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock returns a tool_use block. Empty input is normalized to {}.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	if len(bytes.TrimSpace(input)) == 0 {
		input = json.RawMessage(`{}`)
	}
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock returns a tool_result block answering the tool_use with the given id.
func ToolResultBlock(toolUseID string, content json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content}
}

// Message is one persisted entry of a conversation. Content is either plain
// text or a JSON array of content blocks, stored verbatim.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Blocks decodes the stored content. A JSON array of blocks is returned as-is;
// anything else becomes a single text block.
func (m Message) Blocks() []ContentBlock {
	return ParseContent(m.Content)
}

// ParseContent decodes stored message content into blocks.
func ParseContent(content string) []ContentBlock {
	trimmed := bytes.TrimSpace([]byte(content))
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var blocks []ContentBlock
		if err := json.Unmarshal(trimmed, &blocks); err == nil && validBlocks(blocks) {
			return blocks
		}
	}
	return []ContentBlock{TextBlock(content)}
}

// EncodeText returns the stored form of free text typed by a person. Text
// that ParseContent would read back as blocks is stored wrapped in a single
// text block, so a message can never reload as tool_use or tool_result.
func EncodeText(text string) (string, error) {
	if blocks := ParseContent(text); len(blocks) == 1 && blocks[0].Type == BlockText && blocks[0].Text == text {
		return text, nil
	}
	return EncodeBlocks([]ContentBlock{TextBlock(text)})
}

// EncodeBlocks serializes blocks to the stored content form.
func EncodeBlocks(blocks []ContentBlock) (string, error) {
	data, err := json.Marshal(blocks)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func validBlocks(blocks []ContentBlock) bool {
	if len(blocks) == 0 {
		return false
	}
	for _, b := range blocks {
		if b.Type == "" {
			return false
		}
	}
	return true
}
