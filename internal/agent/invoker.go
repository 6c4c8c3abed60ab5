package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/concierge/internal/events"
	"github.com/nugget/concierge/internal/llm"
	"github.com/nugget/concierge/internal/usage"
)

// StepKind discriminates the result of one reasoning step.
type StepKind int

const (
	// StepText is a final draft.
	StepText StepKind = iota
	// StepToolCall asks for one tool execution.
	StepToolCall
)

// Step is the next move the reasoning engine chose.
type Step struct {
	Kind StepKind
	Text string
	Call llm.ToolCall
}

// Meta identifies the turn a reasoning call belongs to.
type Meta struct {
	RequestID  string
	SessionKey string
}

// UsageRecorder persists token usage. *usage.Store satisfies it.
type UsageRecorder interface {
	Record(ctx context.Context, rec usage.Record) error
}

// Invoker wraps the reasoning-engine client with usage accounting and
// event publishing. Every call the pipeline makes goes through it.
type Invoker struct {
	client llm.Client
	usage  UsageRecorder
	bus    *events.Bus
	logger *slog.Logger
	now    func() time.Time
}

// NewInvoker creates an invoker. usage and bus may be nil.
func NewInvoker(client llm.Client, rec UsageRecorder, bus *events.Bus, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{client: client, usage: rec, bus: bus, logger: logger, now: time.Now}
}

// Call makes one metered reasoning call. Provider failures come back
// wrapped; errors.As still finds the *llm.ProviderError.
func (inv *Invoker) Call(ctx context.Context, meta Meta, purpose, model string, iter int,
	msgs []llm.Message, toolDefs []map[string]any, opts llm.Options) (*llm.ChatResponse, error) {

	inv.bus.Emit(events.SourceAgent, events.KindLLMCall, map[string]any{
		"request_id": meta.RequestID,
		"purpose":    purpose,
		"iter":       iter,
		"model":      model,
	})

	start := inv.now()
	resp, err := inv.client.Chat(ctx, model, msgs, toolDefs, opts)
	if err != nil {
		inv.logger.Error("reasoning call failed",
			"request_id", meta.RequestID,
			"purpose", purpose,
			"iter", iter,
			"model", model,
			"error", err,
		)
		return nil, fmt.Errorf("%s call: %w", purpose, err)
	}

	inv.logger.Debug("reasoning call complete",
		"request_id", meta.RequestID,
		"purpose", purpose,
		"iter", iter,
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"tool_calls", len(resp.Message.ToolCalls),
		"elapsed", inv.now().Sub(start).Round(time.Millisecond),
	)
	inv.bus.Emit(events.SourceAgent, events.KindLLMResponse, map[string]any{
		"request_id": meta.RequestID,
		"purpose":    purpose,
		"iter":       iter,
		"model":      model,
		"tokens_in":  resp.InputTokens,
		"tokens_out": resp.OutputTokens,
		"tool_calls": len(resp.Message.ToolCalls),
	})

	if inv.usage != nil {
		rec := usage.Record{
			Timestamp:    inv.now(),
			RequestID:    meta.RequestID,
			SessionKey:   meta.SessionKey,
			Model:        model,
			Purpose:      purpose,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
		}
		if err := inv.usage.Record(ctx, rec); err != nil {
			inv.logger.Warn("failed to record usage", "request_id", meta.RequestID, "error", err)
		}
	}
	return resp, nil
}

// Next asks for the next dispatch step. Only the first tool call of a
// response is honored; any others are dropped so each result is seen
// before the next decision.
func (inv *Invoker) Next(ctx context.Context, meta Meta, iter int, model string, temperature float64,
	msgs []llm.Message, catalog []map[string]any) (Step, error) {

	resp, err := inv.Call(ctx, meta, usage.PurposeDispatch, model, iter, msgs, catalog, llm.Options{Temperature: temperature})
	if err != nil {
		return Step{}, err
	}

	calls := resp.Message.ToolCalls
	if len(calls) == 0 {
		return Step{Kind: StepText, Text: resp.Message.Content}, nil
	}
	if len(calls) > 1 {
		inv.logger.Warn("model requested several tool calls, executing the first",
			"request_id", meta.RequestID,
			"iter", iter,
			"requested", len(calls),
		)
	}
	call := calls[0]
	if call.ID == "" {
		call.ID = fmt.Sprintf("call_%d", iter)
	}
	return Step{Kind: StepToolCall, Call: call}, nil
}

// Bound returns an llm.Client whose calls are metered under purpose
// for the given turn. Helpers outside this package use it.
func (inv *Invoker) Bound(meta Meta, purpose string) llm.Client {
	return &boundClient{inv: inv, meta: meta, purpose: purpose}
}

type boundClient struct {
	inv     *Invoker
	meta    Meta
	purpose string
}

func (b *boundClient) Chat(ctx context.Context, model string, msgs []llm.Message, toolDefs []map[string]any, opts llm.Options) (*llm.ChatResponse, error) {
	return b.inv.Call(ctx, b.meta, b.purpose, model, 0, msgs, toolDefs, opts)
}

func (b *boundClient) Ping(ctx context.Context) error { return b.inv.client.Ping(ctx) }
