package agent

import (
	"context"
	"encoding/json"

	"github.com/soyeahso/shopchat/internal/domain"
	"github.com/soyeahso/shopchat/internal/toolgw"
)

// ToolSession is the tool catalog available to one conversation.
type ToolSession interface {
	// Tools returns the merged catalog offered to the model.
	Tools() []domain.ToolDescriptor

	// CallTool runs a tool. Failures are reported in the result, never as
	// a Go error, so the model can explain them.
	CallTool(ctx context.Context, name string, input json.RawMessage) toolgw.Result
}

// ToolConnector opens a ToolSession for a conversation.
type ToolConnector interface {
	Connect(ctx context.Context, conversationID string) ToolSession
}

// ToolConnectorFunc adapts a function to ToolConnector.
type ToolConnectorFunc func(ctx context.Context, conversationID string) ToolSession

// Connect calls f.
func (f ToolConnectorFunc) Connect(ctx context.Context, conversationID string) ToolSession {
	return f(ctx, conversationID)
}

// GatewayConnector connects through a tool gateway.
func GatewayConnector(gw *toolgw.Gateway) ToolConnector {
	return ToolConnectorFunc(func(ctx context.Context, conversationID string) ToolSession {
		return gw.Connect(ctx, conversationID)
	})
}

// NoTools is an empty ToolSession.
type NoTools struct{}

func (NoTools) Tools() []domain.ToolDescriptor { return nil }

func (NoTools) CallTool(_ context.Context, name string, _ json.RawMessage) toolgw.Result {
	return toolgw.Result{Error: &toolgw.ToolError{Type: toolgw.ErrorInternal, Data: "Tool not found: " + name}}
}
