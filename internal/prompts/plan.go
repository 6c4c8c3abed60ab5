package prompts

import (
	"fmt"
	"strings"
)

const planAnalysisTemplate = `Analyze the customer message below and decide whether it asks for ONE
action or SEVERAL actions (for example booking two services).

Known services: %s

For each requested action write one line in this exact form:
ACTION: <service name> at <HH:MM> on <date>

Use the service names exactly as listed. Use "tomorrow" or "today" when the
customer said so, otherwise YYYY-MM-DD. If a detail is missing, write
"unknown" in its place. Do not answer the customer.

Customer message:
%s

Analysis:`

// PlanAnalysisPrompt returns the prompt for the preliminary analysis call
// that feeds plan extraction.
func PlanAnalysisPrompt(message string, services []string) string {
	return fmt.Sprintf(planAnalysisTemplate, strings.Join(services, ", "), message)
}

const pendingTemplate = `The customer already asked for these actions and gave every detail
needed. They have NOT been executed yet:
%s
Execute them now with the appropriate tools. Do NOT ask the customer
about them again.`

// PendingInstruction names planned actions that have not been executed
// and forbids the model from asking a redundant clarifying question.
func PendingInstruction(items []string) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteString("\n")
	}
	return fmt.Sprintf(pendingTemplate, strings.TrimRight(b.String(), "\n"))
}

// SummarizePrompt is sent once when the dispatch loop reaches its
// iteration ceiling.
func SummarizePrompt() string {
	return `Stop calling tools. Summarize for the customer what was accomplished
in this conversation turn and what still needs their input. Reply with the
final answer JSON object only.`
}
