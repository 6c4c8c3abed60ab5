package llm

import "context"

// Client is the interface that all reasoning-engine providers implement.
type Client interface {
	// Chat sends one request and returns either text or tool calls in
	// the response message.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any, opts Options) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
