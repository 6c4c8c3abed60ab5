// Package review runs a final consistency check over a draft answer
// before it reaches the customer.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nugget/concierge/internal/llm"
	"github.com/nugget/concierge/internal/plan"
	"github.com/nugget/concierge/internal/prompts"
	"github.com/nugget/concierge/internal/session"
)

// Kind classifies a review result.
type Kind int

const (
	// Approved means the draft can be sent as is.
	Approved Kind = iota
	// Corrected means the reviewer supplied a replacement text.
	Corrected
	// Rejected means the reviewer objected without a usable correction.
	Rejected
)

func (k Kind) String() string {
	switch k {
	case Approved:
		return "approved"
	case Corrected:
		return "corrected"
	}
	return "rejected"
}

// Verdict is the reviewer's decision on one draft.
type Verdict struct {
	Kind Kind
	Text string // replacement text for Corrected and Rejected
}

// Reviewer checks drafts against recent history and the action log.
type Reviewer struct {
	client  llm.Client
	model   string
	persona string
	contact string
	logger  *slog.Logger
}

// NewReviewer creates a reviewer using model on client.
func NewReviewer(client llm.Client, model, persona, contact string, logger *slog.Logger) *Reviewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviewer{
		client:  client,
		model:   model,
		persona: persona,
		contact: contact,
		logger:  logger.With("component", "review"),
	}
}

// Review evaluates draft. An error means the reviewer itself failed and
// the caller should send the draft unchanged.
func (r *Reviewer) Review(ctx context.Context, draft string, history []session.Entry, records []plan.Record) (Verdict, error) {
	prompt := prompts.ReviewPrompt(r.persona, Transcript(history), Facts(records), draft)
	resp, err := r.client.Chat(ctx, r.model, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, nil, llm.Deterministic)
	if err != nil {
		return Verdict{}, fmt.Errorf("review call: %w", err)
	}

	v := r.parse(resp.Message.Content)
	r.logger.Debug("review verdict", "verdict", v.Kind.String())
	return v, nil
}

var (
	approvedWord = regexp.MustCompile(`(?i)\b` + prompts.ReviewApproved + `\b`)
	notApproved  = regexp.MustCompile(`(?i)\bnot\s+` + prompts.ReviewApproved + `\b`)
)

// parse looks for a correction marker first, then the approval verdict.
// Anything else is treated as a rejection.
func (r *Reviewer) parse(out string) Verdict {
	for _, ind := range prompts.ReviewIndicators {
		_, end := indexFold(out, ind)
		if end < 0 {
			continue
		}
		if text := cleanCorrection(out[end:]); text != "" {
			return Verdict{Kind: Corrected, Text: text}
		}
	}

	if approvedWord.MatchString(out) && !notApproved.MatchString(out) {
		return Verdict{Kind: Approved}
	}

	r.logger.Warn("review rejected draft without a correction")
	return Verdict{Kind: Rejected, Text: prompts.ReviewFallbackText(r.contact)}
}

// indexFold finds substr in s ignoring case and returns the byte offsets
// of the match in s, or -1, -1.
func indexFold(s, substr string) (int, int) {
	for start := range s {
		if n := prefixFold(s[start:], substr); n >= 0 {
			return start, start + n
		}
	}
	return -1, -1
}

// prefixFold reports how many bytes of s match prefix case-insensitively,
// or -1.
func prefixFold(s, prefix string) int {
	n := 0
	for _, want := range prefix {
		got, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 || !strings.EqualFold(string(got), string(want)) {
			return -1
		}
		n += size
	}
	return n
}

func cleanCorrection(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`+"`")
	return strings.TrimSpace(s)
}

// Transcript renders history entries one per line.
func Transcript(history []session.Entry) string {
	var b strings.Builder
	for _, e := range history {
		fmt.Fprintf(&b, "%s: %s\n", e.Role, e.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Facts renders the action log for the reviewer.
func Facts(records []plan.Record) string {
	var b strings.Builder
	for _, rec := range records {
		status := "ok"
		if !rec.Success {
			status = "failed"
		}
		fmt.Fprintf(&b, "- %s %s: %s", rec.Tool, status, rec.Result)
		if svc, at := rec.Service(), rec.Time(); svc != "" || at != "" {
			fmt.Fprintf(&b, " (service=%q time=%q)", svc, at)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
