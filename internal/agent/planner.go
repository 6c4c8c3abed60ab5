package agent

import (
	"context"
	"log/slog"

	"github.com/nugget/concierge/internal/events"
	"github.com/nugget/concierge/internal/llm"
	"github.com/nugget/concierge/internal/plan"
	"github.com/nugget/concierge/internal/prompts"
	"github.com/nugget/concierge/internal/usage"
)

// Gate decides cheaply whether a message could request an action.
type Gate interface {
	Plausible(message string) bool
}

// Planner runs the analysis pass and extracts planned actions from it.
type Planner struct {
	inv       *Invoker
	gate      Gate
	extractor plan.Extractor
	services  []string
	model     string
	bus       *events.Bus
	logger    *slog.Logger
}

// NewPlanner creates a planner. A nil gate runs analysis for every
// message.
func NewPlanner(inv *Invoker, gate Gate, extractor plan.Extractor, services []string, model string, bus *events.Bus, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		inv:       inv,
		gate:      gate,
		extractor: extractor,
		services:  services,
		model:     model,
		bus:       bus,
		logger:    logger.With("component", "planner"),
	}
}

// Plan returns the analysis text and the actions extracted from it.
// Failures produce an empty plan; the turn continues without one.
func (p *Planner) Plan(ctx context.Context, meta Meta, message string) (string, []plan.Action) {
	if p.gate != nil && !p.gate.Plausible(message) {
		p.bus.Emit(events.SourceAgent, events.KindPlan, map[string]any{
			"request_id":       meta.RequestID,
			"actions":          0,
			"analysis_skipped": true,
		})
		return "", nil
	}

	msgs := []llm.Message{{Role: llm.RoleUser, Content: prompts.PlanAnalysisPrompt(message, p.services)}}
	resp, err := p.inv.Call(ctx, meta, usage.PurposePlan, p.model, 0, msgs, nil, llm.Deterministic)
	if err != nil {
		p.logger.Warn("plan analysis failed, continuing without plan",
			"request_id", meta.RequestID,
			"error", err,
		)
		return "", nil
	}

	analysis := resp.Message.Content
	actions := p.extractor.Extract(analysis)

	p.logger.Debug("plan ready", "request_id", meta.RequestID, "actions", len(actions))
	p.bus.Emit(events.SourceAgent, events.KindPlan, map[string]any{
		"request_id":       meta.RequestID,
		"actions":          len(actions),
		"analysis_skipped": false,
	})
	return analysis, actions
}
