package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/soyeahso/shopchat/internal/config"
	"github.com/soyeahso/shopchat/internal/domain"
	"github.com/soyeahso/shopchat/internal/logging"
	"github.com/soyeahso/shopchat/internal/version"
)

const (
	defaultClaudeEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion      = "2023-06-01"
)

// ClaudeAPIClient is a direct HTTP client for the Anthropic Messages API.
type ClaudeAPIClient struct {
	apiKey    string
	model     string
	maxTokens int
	endpoint  string
	client    *http.Client
	log       *logging.Logger
}

// NewClaudeAPIClient creates a new Claude API client. The configured timeout
// bounds each request including the time spent reading the stream.
func NewClaudeAPIClient(cfg config.LLMConfig, log *logging.Logger) *ClaudeAPIClient {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultClaudeEndpoint
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ClaudeAPIClient{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: maxTokens,
		endpoint:  endpoint,
		client:    &http.Client{Timeout: timeout},
		log:       log.Sub("llm.claude"),
	}
}

// Name returns the provider name.
func (c *ClaudeAPIClient) Name() string {
	return "claude"
}

// Stream sends a streaming completion request. Non-200 responses are
// returned synchronously as *ProviderError so callers can classify them
// before any output reaches the client.
func (c *ClaudeAPIClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	payload, err := json.Marshal(c.buildRequestBody(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("claude request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return nil, &ProviderError{Provider: c.Name(), Message: apiErrorMessage(body), Code: resp.StatusCode}
	}

	events := make(chan StreamEvent, 16)
	go c.readStream(ctx, resp.Body, events, start)
	return events, nil
}

func (c *ClaudeAPIClient) buildRequestBody(req CompletionRequest) claudeRequest {
	body := claudeRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Messages:    mergeMessages(req.Messages),
		Temperature: req.Temperature,
		Stream:      true,
	}
	if body.Model == "" {
		body.Model = c.model
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = c.maxTokens
	}
	for _, t := range req.Tools {
		schema := t.InputSchema
		if len(bytes.TrimSpace(schema)) == 0 {
			schema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		body.Tools = append(body.Tools, claudeTool{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return body
}

// mergeMessages folds consecutive same-role messages into one API message,
// since stored history keeps each tool result as its own row. Empty text
// blocks are dropped because the API rejects them.
func mergeMessages(msgs []Message) []claudeMessage {
	var out []claudeMessage
	for _, m := range msgs {
		var blocks []domain.ContentBlock
		for _, b := range m.Content {
			if b.Type == domain.BlockText && b.Text == "" {
				continue
			}
			blocks = append(blocks, b)
		}
		if len(blocks) == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			continue
		}
		out = append(out, claudeMessage{Role: m.Role, Content: blocks})
	}
	return out
}

func (c *ClaudeAPIClient) readStream(ctx context.Context, body io.ReadCloser, events chan<- StreamEvent, start time.Time) {
	defer close(events)
	defer body.Close()

	send := func(ev StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var (
		resp     CompletionResponse
		position = map[int]int{} // stream index -> position in resp.Content
		partial  = map[int]*bytes.Buffer{}
		stopped  bool
	)

	scanner := newServerSentEventScanner(body)
	for scanner.Scan() {
		var event claudeStreamEvent
		if err := json.Unmarshal([]byte(scanner.Data()), &event); err != nil {
			c.log.Debug().Err(err).Msg("skipping malformed stream event")
			continue
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				resp.ID = event.Message.ID
				resp.Model = event.Message.Model
				resp.Usage.InputTokens = event.Message.Usage.InputTokens
			}

		case "content_block_start":
			if event.ContentBlock == nil {
				continue
			}
			block := *event.ContentBlock
			if block.Type == domain.BlockToolUse {
				block.Input = nil
				partial[event.Index] = &bytes.Buffer{}
			}
			position[event.Index] = len(resp.Content)
			resp.Content = append(resp.Content, block)

		case "content_block_delta":
			pos, ok := position[event.Index]
			if !ok || event.Delta == nil {
				continue
			}
			switch event.Delta.Type {
			case "text_delta":
				resp.Content[pos].Text += event.Delta.Text
				if !send(StreamEvent{Type: "delta", Content: event.Delta.Text}) {
					return
				}
			case "input_json_delta":
				if buf := partial[event.Index]; buf != nil {
					buf.WriteString(event.Delta.PartialJSON)
				}
			}

		case "content_block_stop":
			pos, ok := position[event.Index]
			if !ok {
				continue
			}
			if buf := partial[event.Index]; buf != nil {
				resp.Content[pos] = domain.ToolUseBlock(resp.Content[pos].ID, resp.Content[pos].Name, toolInput(buf.Bytes()))
				delete(partial, event.Index)
			}

		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				resp.StopReason = event.Delta.StopReason
			}
			if event.Usage != nil {
				resp.Usage.OutputTokens = event.Usage.OutputTokens
			}

		case "message_stop":
			stopped = true

		case "error":
			perr := &ProviderError{Provider: c.Name(), Message: "stream error", Code: 500}
			if event.Error != nil {
				perr.Message = event.Error.Type + ": " + event.Error.Message
				perr.Code = errorTypeStatus(event.Error.Type)
			}
			send(StreamEvent{Type: "error", Err: perr})
			return
		}
	}

	if err := scanner.Err(); err != nil {
		send(StreamEvent{Type: "error", Err: fmt.Errorf("read stream: %w", err)})
		return
	}
	if !stopped {
		if err := ctx.Err(); err != nil {
			send(StreamEvent{Type: "error", Err: err})
			return
		}
		send(StreamEvent{Type: "error", Err: &ProviderError{Provider: c.Name(), Message: "stream ended before message_stop"}})
		return
	}

	resp.Duration = time.Since(start)
	c.log.Debug().
		Str("model", resp.Model).
		Str("stopReason", resp.StopReason).
		Int("inputTokens", resp.Usage.InputTokens).
		Int("outputTokens", resp.Usage.OutputTokens).
		Int("toolUses", len(resp.ToolUses())).
		Dur("duration", resp.Duration).
		Msg("stream complete")

	send(StreamEvent{Type: "done", Response: &resp})
}

// toolInput returns the accumulated tool arguments, wrapping text that is
// not valid JSON so the call still reaches schema validation.
func toolInput(raw []byte) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if !json.Valid(raw) {
		wrapped, _ := json.Marshal(map[string]string{"_raw": string(raw)})
		return wrapped
	}
	return json.RawMessage(raw)
}

// API wire structures

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
	Tools       []claudeTool    `json:"tools,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	Stream      bool            `json:"stream"`
}

type claudeMessage struct {
	Role    string                `json:"role"`
	Content []domain.ContentBlock `json:"content"`
}

type claudeTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type claudeAPIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeStreamEvent struct {
	Type         string               `json:"type"`
	Index        int                  `json:"index"`
	Message      *claudeStreamMessage `json:"message,omitempty"`
	ContentBlock *domain.ContentBlock `json:"content_block,omitempty"`
	Delta        *claudeStreamDelta   `json:"delta,omitempty"`
	Usage        *claudeUsage         `json:"usage,omitempty"`
	Error        *claudeAPIError      `json:"error,omitempty"`
}

type claudeStreamMessage struct {
	ID    string      `json:"id"`
	Model string      `json:"model"`
	Usage claudeUsage `json:"usage"`
}

type claudeStreamDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}
