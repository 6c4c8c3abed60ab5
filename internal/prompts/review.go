package prompts

import "fmt"

const reviewTemplate = `You are reviewing a receptionist's reply before it is sent to a customer.

Business guidance:
%s

Recent conversation:
%s

Facts confirmed by the system this turn:
%s

Draft reply:
%s

Check the draft for:
1. Internal details (tool names, JSON, error messages, stack traces).
2. Contradictions with the recent conversation.
3. Claims not supported by the confirmed facts, such as a booking that
   was not confirmed or a time slot that is already taken.

If the draft is fine, answer exactly: APPROVED
Otherwise answer with:
CORRECTED VERSION: <the full corrected reply text>`

// ReviewPrompt returns the consistency review prompt.
func ReviewPrompt(persona, transcript, facts, draft string) string {
	if persona == "" {
		persona = "(none)"
	}
	if transcript == "" {
		transcript = "(first message)"
	}
	if facts == "" {
		facts = "(no actions executed)"
	}
	return fmt.Sprintf(reviewTemplate, persona, transcript, facts, draft)
}

// ReviewApproved is the verdict the reviewer emits for a clean draft.
const ReviewApproved = "APPROVED"

// ReviewIndicators are the markers tried, in order, to locate a
// corrected reply inside review output. Matching is case-insensitive.
var ReviewIndicators = []string{
	"corrected version:",
	"versão corrigida:",
	"corrected reply:",
	"corrected text:",
	"resposta corrigida:",
	"correction:",
}
