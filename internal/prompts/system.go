package prompts

import (
	"fmt"
	"strings"
	"time"
)

// ResponseSchema is the exact JSON shape every final answer must take.
// The response package decodes against the same field names.
const ResponseSchema = `{
  "text": "<message shown to the customer>",
  "metadata": {
    "intent": "<greeting|booking|cancellation|reschedule|availability|information|other>",
    "mentionedSlots": ["HH:MM", ...],
    "bookedSlots": ["HH:MM", ...],
    "mentionedServices": ["<service name>", ...],
    "referenceDate": "YYYY-MM-DD",
    "confidence": <0.0-1.0>
  }
}`

const systemTemplate = `You are the virtual receptionist for %s.

%s

## Current Date and Time
Now: %s (%s)
Today: %s
Tomorrow: %s

## Services
%s

## Opening Hours
Appointments run from %02d:00 to %02d:00.

## When to Use Tools
- Check availability before promising a time.
- Call createAppointment only when the customer gave a service, a date and a time.
- Call at most one tool per reply. You will see its result before deciding the next step.
- If a tool returns an error, explain the situation plainly without repeating the error.

## Final Answer Format
When you are done with tools, reply with ONE JSON object and nothing else:

%s

Rules for the final answer:
- "text" is written in the customer's language, friendly and short.
- Never put tool names, JSON, or system errors inside "text".
- "bookedSlots" lists only times a createAppointment call actually confirmed.
- If you cannot help, point the customer to %s.`

// SystemParams carries the per-business values interpolated into the
// system prompt. It is built fresh for every turn.
type SystemParams struct {
	BusinessName   string
	Persona        string
	Services       []ServiceLine
	OpenHour       int
	CloseHour      int
	ContactChannel string
	Now            time.Time
}

// ServiceLine is one service as presented to the model.
type ServiceLine struct {
	Name            string
	DurationMinutes int
	Price           float64
}

// SystemPrompt returns the full system prompt for a dispatch turn. The
// current time is rendered as literal text since the model has no clock.
func SystemPrompt(p SystemParams) string {
	persona := strings.TrimSpace(p.Persona)
	if persona == "" {
		persona = "Be warm, concise and helpful."
	}

	var services strings.Builder
	for _, s := range p.Services {
		fmt.Fprintf(&services, "- %s (%d min", s.Name, s.DurationMinutes)
		if s.Price > 0 {
			fmt.Fprintf(&services, ", R$ %.2f", s.Price)
		}
		services.WriteString(")\n")
	}
	if services.Len() == 0 {
		services.WriteString("- (use listServices)\n")
	}

	return fmt.Sprintf(systemTemplate,
		p.BusinessName,
		persona,
		p.Now.Format("2006-01-02 15:04"),
		p.Now.Format("Monday"),
		p.Now.Format("2006-01-02"),
		p.Now.AddDate(0, 0, 1).Format("2006-01-02"),
		strings.TrimRight(services.String(), "\n"),
		p.OpenHour, p.CloseHour,
		ResponseSchema,
		p.ContactChannel,
	)
}
