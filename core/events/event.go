package events

import "wagerchain/core/types"

// Event represents a structured state change emitted by the engines.
type Event interface {
	EventType() string
}

// Typed is implemented by events that render into the flat wire form consumed
// by the gateway stream and the explorer.
type Typed interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events until the surrounding state transition either
// commits (Drain) or fails (Reset). It is not safe for concurrent use.
type Buffer struct {
	pending []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(e Event) {
	if e == nil {
		return
	}
	b.pending = append(b.pending, e)
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int { return len(b.pending) }

// Drain returns the buffered events and empties the buffer.
func (b *Buffer) Drain() []Event {
	out := b.pending
	b.pending = nil
	return out
}

// Reset discards every buffered event.
func (b *Buffer) Reset() { b.pending = nil }

// ToWire converts an event into its flat representation. Events that do not
// implement Typed are rendered with their type only.
func ToWire(e Event) *types.Event {
	if typed, ok := e.(Typed); ok {
		return typed.Event()
	}
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{}}
}
