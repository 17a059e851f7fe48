// Package hooks dispatches chat turn and gateway lifecycle events to
// registered handlers. Handlers observe; they cannot veto or alter a turn.
package hooks

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/soyeahso/shopchat/internal/logging"
	"github.com/sourcegraph/conc"
)

// Event names.
const (
	EventTurnStart    = "turn_start"
	EventTurnEnd      = "turn_end"
	EventToolCall     = "tool_call"
	EventAuthRequired = "auth_required"
	EventGatewayStart = "gateway_start"
	EventGatewayStop  = "gateway_stop"
)

// AllEvents lists every event the chat and gateway packages emit.
var AllEvents = []string{
	EventTurnStart,
	EventTurnEnd,
	EventToolCall,
	EventAuthRequired,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload is what a handler receives.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler reacts to one event. A returned error or a panic is logged and
// the remaining handlers still run.
type Handler func(ctx context.Context, p Payload) error

type namedHandler struct {
	name    string
	handler Handler
}

// Manager holds handler registrations. A nil *Manager is valid and drops
// every event, so components can take one unconditionally.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	pending  conc.WaitGroup
	log      *logging.Logger
}

// NewManager creates an empty manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers handler under name. Registering the same name twice for an
// event replaces the earlier handler and keeps its position.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hs := m.handlers[event]
	if i := slices.IndexFunc(hs, func(h namedHandler) bool { return h.name == name }); i >= 0 {
		hs[i].handler = handler
	} else {
		m.handlers[event] = append(hs, namedHandler{name: name, handler: handler})
	}
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes the named handler from event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = slices.DeleteFunc(m.handlers[event], func(h namedHandler) bool {
		return h.name == name
	})
}

// Count returns how many handlers are registered for event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Handlers returns the handler names for event in dispatch order.
func (m *Manager) Handlers(event string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.handlers[event]))
	for _, h := range m.handlers[event] {
		names = append(names, h.name)
	}
	return names
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.handlers[event])
}

// Emit runs the handlers for event in registration order and returns when
// all of them have finished.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	p := Payload{Event: event, Data: data}
	for _, h := range m.snapshot(event) {
		m.call(ctx, h, p)
	}
}

// EmitAsync runs the handlers for event in the background, one goroutine
// per handler, detached from ctx cancellation. Wait blocks until they are
// done.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	p := Payload{Event: event, Data: data}
	for _, h := range m.snapshot(event) {
		m.pending.Go(func() { m.call(ctx, h, p) })
	}
}

// Wait blocks until every handler started by EmitAsync has returned.
func (m *Manager) Wait() {
	if m == nil {
		return
	}
	m.pending.Wait()
}

func (m *Manager) call(ctx context.Context, h namedHandler, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().
				Str("event", p.Event).
				Str("handler", h.name).
				Str("panic", fmt.Sprint(r)).
				Msg("hook handler panicked")
		}
	}()
	if err := h.handler(ctx, p); err != nil {
		m.log.Warn().
			Err(err).
			Str("event", p.Event).
			Str("handler", h.name).
			Msg("hook handler failed")
	}
}
