// Package events provides a publish/subscribe bus for turn
// observability. The turn pipeline publishes; the MQTT exporter and any
// debugging consumers subscribe. Publishing on a nil *Bus is a no-op so
// components need no guard checks.
package events

import (
	"sync"
	"time"
)

// Sources identify the publishing component.
const (
	SourceAgent     = "agent"
	SourceAPI       = "api"
	SourceConnwatch = "connwatch"
)

// Kinds describe what happened. The Data keys listed are the ones the
// publisher guarantees.
const (
	// KindRequestStart: request_id, session, privileged.
	KindRequestStart = "request_start"
	// KindPlan: request_id, actions (count), analysis_skipped.
	KindPlan = "plan"
	// KindLLMCall: request_id, purpose, iter, model.
	KindLLMCall = "llm_call"
	// KindLLMResponse: request_id, purpose, iter, model, tokens_in,
	// tokens_out, tool_calls.
	KindLLMResponse = "llm_response"
	// KindToolCall: request_id, tool.
	KindToolCall = "tool_call"
	// KindToolDone: request_id, tool, ok, duration_ms.
	KindToolDone = "tool_done"
	// KindRepair: request_id, ok.
	KindRepair = "repair"
	// KindReview: request_id, approved, fallback.
	KindReview = "review"
	// KindRequestComplete: request_id, session, iterations, tools,
	// pending, elapsed_ms.
	KindRequestComplete = "request_complete"
	// KindServiceStatus: service, ready, error.
	KindServiceStatus = "service_status"
)

// Event is a single operational event.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast bus. Subscribers receive events on
// buffered channels; a full subscriber misses events instead of
// stalling the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[<-chan Event]chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[<-chan Event]chan Event)}
}

// Publish delivers e to every subscriber that has room.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Emit publishes an event stamped with the current time.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	b.Publish(Event{Timestamp: time.Now(), Source: source, Kind: kind, Data: data})
}

// Subscribe returns a channel receiving published events. Callers must
// Unsubscribe when done.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel. Repeated
// calls are no-ops.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if send, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(send)
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
