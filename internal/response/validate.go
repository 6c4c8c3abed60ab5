package response

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nugget/concierge/internal/prompts"
)

// Repairer asks the reasoning engine to reformat a raw reply into the
// Final Answer schema.
type Repairer interface {
	Repair(ctx context.Context, raw string) (string, error)
}

// Outcome records which path Validate took.
type Outcome int

const (
	// Parsed means the raw text already contained a valid answer.
	Parsed Outcome = iota
	// Repaired means the single repair call produced a valid answer.
	Repaired
	// Synthesized means neither worked and the raw text was wrapped.
	Synthesized
)

func (o Outcome) String() string {
	switch o {
	case Parsed:
		return "parsed"
	case Repaired:
		return "repaired"
	}
	return "synthesized"
}

// Validator converts raw reasoning-engine text into a Final Answer.
type Validator struct {
	repairer  Repairer
	sanitizer *Sanitizer
	contact   string
	logger    *slog.Logger
}

// NewValidator creates a validator. The repairer may be nil, in which
// case unparseable text goes straight to the fallback.
func NewValidator(repairer Repairer, sanitizer *Sanitizer, contact string, logger *slog.Logger) *Validator {
	if sanitizer == nil {
		sanitizer = NewSanitizer(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{repairer: repairer, sanitizer: sanitizer, contact: contact, logger: logger}
}

// Validate never fails. At most one repair call is made; when it does
// not yield valid JSON the raw text becomes the answer text with intent
// "unknown" and confidence 0. Prose is kept verbatim; a broken envelope
// contributes only its recovered text.
func (v *Validator) Validate(ctx context.Context, raw string) (Answer, Outcome) {
	if a, ok := Extract(raw); ok {
		return v.finish(a, Parsed), Parsed
	}

	if v.repairer != nil && strings.TrimSpace(raw) != "" {
		fixed, err := v.repairer.Repair(ctx, raw)
		if err != nil {
			v.logger.Warn("answer repair failed", "error", err)
		} else if a, ok := Extract(fixed); ok {
			v.logger.Debug("answer repaired")
			return v.finish(a, Repaired), Repaired
		} else {
			v.logger.Debug("repair output still not valid JSON")
		}
	}

	text := Salvage(raw)
	if text != raw {
		v.logger.Debug("recovered text from malformed envelope")
	}
	return v.finish(Fallback(text), Synthesized), Synthesized
}

func (v *Validator) finish(a Answer, how Outcome) Answer {
	clean := v.sanitizer.Clean(a.Text)
	if clean == "" {
		v.logger.Warn("answer text empty after sanitizing, using apology", "outcome", how.String())
		clean = prompts.ApologyText(v.contact)
	}
	a.Text = clean
	return a
}

// Apology returns the canned answer used when no draft exists at all.
func (v *Validator) Apology() Answer {
	return Fallback(prompts.ApologyText(v.contact))
}
