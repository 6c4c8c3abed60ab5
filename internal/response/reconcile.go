package response

import (
	"github.com/nugget/concierge/internal/plan"
	"github.com/nugget/concierge/internal/prompts"
)

// RewritePending replaces the answer text when planned actions were
// never executed. With nothing confirmed the customer is asked to retry;
// with a partial result the confirmed actions are named and the rest
// must be reconfirmed. Returns the answer and whether it was rewritten.
func RewritePending(a Answer, pending, succeeded, rest []plan.Action) (Answer, bool) {
	if len(pending) == 0 {
		return a, false
	}
	if len(succeeded) == 0 {
		a.Text = prompts.RetryText(labels(pending))
	} else {
		a.Text = prompts.PartialText(labels(succeeded), labels(rest))
	}
	a.Metadata.Confidence = min(a.Metadata.Confidence, 0.5)
	return a, true
}

func labels(actions []plan.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.Label()
	}
	return out
}

// GroundBookedSlots makes metadata.bookedSlots agree with the action
// log: every time confirmed by a successful booking record is present
// exactly once, and slots the model claimed without a confirming record
// are dropped.
func GroundBookedSlots(a Answer, records []plan.Record, bookingTools ...string) Answer {
	tracked := make(map[string]bool, len(bookingTools))
	for _, t := range bookingTools {
		tracked[t] = true
	}

	confirmed := make(map[string]bool)
	var order []string
	for _, rec := range records {
		if !rec.Success || !tracked[rec.Tool] {
			continue
		}
		t, ok := plan.NormalizeTime(rec.Time())
		if !ok || confirmed[t] {
			continue
		}
		confirmed[t] = true
		order = append(order, t)
	}

	out := []string{}
	seen := make(map[string]bool)
	for _, s := range a.Metadata.BookedSlots {
		t, ok := plan.NormalizeTime(s)
		if ok && confirmed[t] && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range order {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	a.Metadata.BookedSlots = out
	return a
}
