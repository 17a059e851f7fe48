package llm

import (
	"context"

	"github.com/soyeahso/shopchat/internal/domain"
)

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	StreamFunc   func(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	return ReplayStream(&CompletionResponse{
		Content:    []domain.ContentBlock{domain.TextBlock("mock stream response")},
		StopReason: StopEndTurn,
	}), nil
}

// ReplayStream returns a closed, buffered channel that emits every text block
// of resp as a delta followed by a done event carrying resp.
func ReplayStream(resp *CompletionResponse) <-chan StreamEvent {
	ch := make(chan StreamEvent, len(resp.Content)+1)
	for _, b := range resp.Content {
		if b.Type == domain.BlockText && b.Text != "" {
			ch <- StreamEvent{Type: "delta", Content: b.Text}
		}
	}
	ch <- StreamEvent{Type: "done", Response: resp}
	close(ch)
	return ch
}

// ErrorStream returns a closed channel holding a single error event.
func ErrorStream(err error) <-chan StreamEvent {
	ch := make(chan StreamEvent, 1)
	ch <- StreamEvent{Type: "error", Err: err}
	close(ch)
	return ch
}
