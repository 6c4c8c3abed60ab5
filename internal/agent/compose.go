package agent

import (
	"time"

	"github.com/nugget/concierge/internal/llm"
	"github.com/nugget/concierge/internal/prompts"
	"github.com/nugget/concierge/internal/session"
)

// Persona holds the per-business values the system prompt is built
// from.
type Persona struct {
	BusinessName   string
	Persona        string
	ContactChannel string
	OpenHour       int
	CloseHour      int
	Services       []prompts.ServiceLine
	Location       *time.Location
}

// Bundle is the immutable prompt material for one turn.
type Bundle struct {
	System  string
	History []llm.Message
	Now     time.Time
}

// Composer builds a fresh Bundle for every turn.
type Composer struct {
	persona      Persona
	historyLimit int
}

// NewComposer creates a composer that includes at most historyLimit
// prior entries.
func NewComposer(p Persona, historyLimit int) *Composer {
	if p.Location == nil {
		p.Location = time.Local
	}
	return &Composer{persona: p, historyLimit: historyLimit}
}

// Compose renders the system prompt for now and converts the most
// recent history entries into messages.
func (c *Composer) Compose(history []session.Entry, now time.Time) Bundle {
	now = now.In(c.persona.Location)
	system := prompts.SystemPrompt(prompts.SystemParams{
		BusinessName:   c.persona.BusinessName,
		Persona:        c.persona.Persona,
		Services:       c.persona.Services,
		OpenHour:       c.persona.OpenHour,
		CloseHour:      c.persona.CloseHour,
		ContactChannel: c.persona.ContactChannel,
		Now:            now,
	})

	recent := session.Recent(history, c.historyLimit)
	msgs := make([]llm.Message, 0, len(recent))
	for _, e := range recent {
		role := llm.RoleUser
		if e.Role == session.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: e.Content})
	}
	return Bundle{System: system, History: msgs, Now: now}
}
