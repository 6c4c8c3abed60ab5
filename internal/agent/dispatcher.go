package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/nugget/concierge/internal/events"
	"github.com/nugget/concierge/internal/llm"
	"github.com/nugget/concierge/internal/plan"
	"github.com/nugget/concierge/internal/prompts"
	"github.com/nugget/concierge/internal/tools"
	"github.com/nugget/concierge/internal/usage"
)

// Outcome is what one dispatch run produced.
type Outcome struct {
	// Draft is the raw final text. Empty when Failed.
	Draft string
	// Records lists every tool execution in order.
	Records []plan.Record
	// Pending lists planned actions no record completed.
	Pending []plan.Action
	// Iterations counts dispatch steps taken, excluding the summary.
	Iterations int
	// Exhausted is set when the ceiling forced a summary call.
	Exhausted bool
	// Failed is set when the reasoning engine could not be reached.
	Failed bool
}

// Dispatcher runs the bounded tool-calling loop for one turn.
type Dispatcher struct {
	inv         *Invoker
	registry    *tools.Registry
	reconciler  *plan.Reconciler
	model       string
	temperature float64
	ceiling     int
	bus         *events.Bus
	logger      *slog.Logger
	now         func() time.Time
}

// NewDispatcher creates a dispatcher that takes at most ceiling steps.
func NewDispatcher(inv *Invoker, registry *tools.Registry, reconciler *plan.Reconciler,
	model string, temperature float64, ceiling int, bus *events.Bus, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if ceiling <= 0 {
		ceiling = 1
	}
	return &Dispatcher{
		inv:         inv,
		registry:    registry,
		reconciler:  reconciler,
		model:       model,
		temperature: temperature,
		ceiling:     ceiling,
		bus:         bus,
		logger:      logger.With("component", "dispatcher"),
		now:         time.Now,
	}
}

// Run loops until the model answers with text or the ceiling is
// reached. The caller's privilege is read from ctx and decides which
// tools are offered.
func (d *Dispatcher) Run(ctx context.Context, meta Meta, tc *TurnContext, planned []plan.Action) Outcome {
	caller := tools.CallerFromContext(ctx)
	catalog := d.registry.Catalog(caller.Privileged)
	out := Outcome{Pending: planned}

	for iter := 0; iter < d.ceiling; iter++ {
		out.Iterations = iter + 1

		step, err := d.inv.Next(ctx, meta, iter, d.model, d.temperature, tc.Messages(), catalog)
		if err != nil {
			out.Failed = true
			return out
		}

		if step.Kind == StepText {
			out.Draft = step.Text
			d.logger.Debug("dispatch done",
				"request_id", meta.RequestID,
				"iterations", out.Iterations,
				"tools", len(out.Records),
			)
			return out
		}

		rec, result := d.execute(ctx, meta, step.Call)
		tc.AddToolExchange(step.Call, result)
		out.Records = append(out.Records, rec)

		out.Pending = d.reconciler.Pending(planned, out.Records)
		if len(out.Pending) == 0 {
			tc.SetPending("")
			continue
		}
		items := make([]string, len(out.Pending))
		for i, a := range out.Pending {
			items[i] = a.String()
		}
		tc.SetPending(prompts.PendingInstruction(items))
		d.logger.Debug("pending actions remain",
			"request_id", meta.RequestID,
			"iter", iter,
			"pending", len(out.Pending),
		)
	}

	d.logger.Warn("iteration ceiling reached, requesting summary",
		"request_id", meta.RequestID,
		"ceiling", d.ceiling,
		"tools", len(out.Records),
	)
	out.Exhausted = true

	tc.AddSystem(prompts.SummarizePrompt())
	resp, err := d.inv.Call(ctx, meta, usage.PurposeSummarize, d.model, d.ceiling,
		tc.Messages(), nil, llm.Options{Temperature: d.temperature})
	if err != nil {
		out.Failed = true
		return out
	}
	out.Draft = resp.Message.Content
	return out
}

// execute runs one tool call and returns its record and the result
// string placed in the turn context. Unknown and refused tools never
// reach a handler; every failure becomes an {"error": ...} result.
func (d *Dispatcher) execute(ctx context.Context, meta Meta, call llm.ToolCall) (plan.Record, string) {
	name := call.Function.Name
	args := call.Function.Arguments
	if args == nil {
		args = map[string]any{}
	}

	d.bus.Emit(events.SourceAgent, events.KindToolCall, map[string]any{
		"request_id": meta.RequestID,
		"tool":       name,
	})

	start := d.now()
	result, err := d.registry.Execute(ctx, name, args)
	elapsed := d.now().Sub(start)

	rec := plan.Record{Tool: name, Args: args, Success: err == nil, At: start}
	if err != nil {
		result = tools.ErrorResult(err)
		d.logger.Warn("tool failed",
			"request_id", meta.RequestID,
			"tool", name,
			"error", err,
		)
	} else {
		d.logger.Debug("tool executed",
			"request_id", meta.RequestID,
			"tool", name,
			"elapsed", elapsed.Round(time.Millisecond),
		)
	}
	rec.Result = result

	d.bus.Emit(events.SourceAgent, events.KindToolDone, map[string]any{
		"request_id":  meta.RequestID,
		"tool":        name,
		"ok":          rec.Success,
		"duration_ms": elapsed.Milliseconds(),
	})
	return rec, result
}
