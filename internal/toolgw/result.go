package toolgw

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/soyeahso/shopchat/internal/domain"
)

// Tool error types surfaced to the model.
const (
	ErrorAuthRequired = "auth_required"
	ErrorInternal     = "internal_error"
)

// ToolError is the error half of a tool call result.
type ToolError struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Result is the outcome of one tool call. Exactly one of Content or Error is set.
type Result struct {
	Content json.RawMessage `json:"content,omitempty"`
	Error   *ToolError      `json:"error,omitempty"`
}

// AuthRequired reports whether the call needs the customer to authorize.
func (r Result) AuthRequired() bool {
	return r.Error != nil && r.Error.Type == ErrorAuthRequired
}

// ToolResultContent returns the content recorded in the tool_result block:
// the error data as a JSON string, or the success content, which is always
// a string or a block array.
func (r Result) ToolResultContent() json.RawMessage {
	if r.Error != nil {
		data, _ := json.Marshal(r.Error.Data)
		return data
	}
	if len(bytes.TrimSpace(r.Content)) == 0 {
		return json.RawMessage(`[]`)
	}
	if isArray(r.Content) || isString(r.Content) {
		return r.Content
	}
	return textContent(r.Content)
}

func isArray(raw json.RawMessage) bool {
	var blocks []json.RawMessage
	return json.Unmarshal(raw, &blocks) == nil && blocks != nil
}

func isString(raw json.RawMessage) bool {
	var s string
	return json.Unmarshal(raw, &s) == nil
}

// textContent wraps arbitrary JSON as a single text block.
func textContent(raw json.RawMessage) json.RawMessage {
	data, _ := json.Marshal([]domain.ContentBlock{{Type: domain.BlockText, Text: string(bytes.TrimSpace(raw))}})
	return data
}

func internalError(format string, args ...any) Result {
	return Result{Error: &ToolError{Type: ErrorInternal, Data: fmt.Sprintf(format, args...)}}
}

// authRequiredMessage is the markdown the model relays to the customer.
// Without a URL there is no link to offer.
func authRequiredMessage(url string) string {
	if url == "" {
		return "You need to authorize the app to access your customer data, but customer sign-in is not available right now."
	}
	return fmt.Sprintf("You need to authorize the app to access your customer data. [Click here to authorize](%s)", url)
}
