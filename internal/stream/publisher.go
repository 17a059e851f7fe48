package stream

import (
	"context"
	"sync"

	"github.com/soyeahso/shopchat/internal/logging"
)

// Sink writes events to one client connection.
type Sink interface {
	WriteEvent(ev Event) error
	Close() error
}

// Publisher is the single writer for a client stream. Events are written in
// emission order. After the client goes away further events are dropped.
type Publisher struct {
	ctx  context.Context
	sink Sink
	log  *logging.Logger

	mu     sync.Mutex
	closed bool
	broken bool
	failed bool
}

// NewPublisher creates a publisher writing to sink until ctx is done.
func NewPublisher(ctx context.Context, sink Sink, log *logging.Logger) *Publisher {
	return &Publisher{ctx: ctx, sink: sink, log: log.Sub("stream")}
}

// Emit writes ev unless the stream is closed or the client has disconnected.
func (p *Publisher) Emit(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emitLocked(ev)
}

func (p *Publisher) emitLocked(ev Event) {
	if p.closed || p.broken {
		return
	}
	if p.ctx.Err() != nil {
		p.broken = true
		p.log.Debug().Str("type", ev.Type).Msg("client gone, dropping event")
		return
	}
	if err := p.sink.WriteEvent(ev); err != nil {
		p.broken = true
		p.log.Debug().Err(err).Str("type", ev.Type).Msg("stream write failed, dropping further events")
	}
}

// Fail emits the classified terminal event for err. Only the first call
// has any effect.
func (p *Publisher) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failed {
		return
	}
	p.failed = true

	ev := Classify(err)
	p.log.Error().Err(err).Str("type", ev.Type).Msg("turn failed")
	p.emitLocked(ev)
}

// Failed reports whether a terminal error event has been emitted.
func (p *Publisher) Failed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed
}

// Close closes the sink. It is safe to call more than once.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if err := p.sink.Close(); err != nil {
		p.log.Debug().Err(err).Msg("closing stream")
	}
}
