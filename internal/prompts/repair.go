package prompts

import "fmt"

const repairTemplate = `Reformat the reply below into the required JSON object. Keep every piece
of information and the original wording of the message. Do not add facts.

Required format:
%s

Reply to reformat:
%s

JSON:`

// RepairPrompt asks the format model to rewrap raw output into the
// final answer schema.
func RepairPrompt(raw string) string {
	return fmt.Sprintf(repairTemplate, ResponseSchema, raw)
}
