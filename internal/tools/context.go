package tools

import "context"

type contextKey string

const callerKey contextKey = "caller"

// Caller identifies who a turn is running for. Tool handlers use it to
// scope customer operations; the registry uses Privileged to gate
// administrative tools.
type Caller struct {
	BusinessID string
	UserID     string
	Name       string
	Privileged bool
	RequestID  string
}

// WithCaller adds the caller to the context.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFromContext extracts the caller from the context. The zero
// Caller (not privileged) is returned if none was set.
func CallerFromContext(ctx context.Context) Caller {
	if c, ok := ctx.Value(callerKey).(Caller); ok {
		return c
	}
	return Caller{}
}
