package events

import "jidchain/core/types"

// Event is a registry notification. Every event can render itself in the
// generic form handed to sinks.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter receives events as the engine produces them.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer holds emitted events until the surrounding invocation either
// commits and drains them or rolls back and resets. It is not safe for
// concurrent use.
type Buffer struct {
	pending []types.Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	b.pending = append(b.pending, payload.Clone())
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int { return len(b.pending) }

// Reset drops all buffered events.
func (b *Buffer) Reset() { b.pending = b.pending[:0] }

// Drain returns the buffered events in emission order and empties the buffer.
func (b *Buffer) Drain() []types.Event {
	out := make([]types.Event, len(b.pending))
	copy(out, b.pending)
	b.pending = b.pending[:0]
	return out
}
