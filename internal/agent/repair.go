package agent

import (
	"context"

	"github.com/nugget/concierge/internal/events"
	"github.com/nugget/concierge/internal/llm"
	"github.com/nugget/concierge/internal/prompts"
	"github.com/nugget/concierge/internal/usage"
)

// repairer asks the format model to restate a draft as the answer
// schema. It implements response.Repairer for one turn.
type repairer struct {
	inv   *Invoker
	meta  Meta
	model string
}

func (r *repairer) Repair(ctx context.Context, raw string) (string, error) {
	msgs := []llm.Message{{Role: llm.RoleUser, Content: prompts.RepairPrompt(raw)}}
	resp, err := r.inv.Call(ctx, r.meta, usage.PurposeRepair, r.model, 0, msgs, nil, llm.Deterministic)
	ok := err == nil
	r.inv.bus.Emit(events.SourceAgent, events.KindRepair, map[string]any{
		"request_id": r.meta.RequestID,
		"ok":         ok,
	})
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}
