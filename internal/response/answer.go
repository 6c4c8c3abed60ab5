// Package response turns raw reasoning-engine output into the Final
// Answer sent to customers. Whatever the model produced, the result is
// a well-formed Answer with non-empty text free of tool-call syntax,
// JSON envelopes and internal error detail.
package response

// IntentUnknown marks answers whose metadata could not be recovered.
const IntentUnknown = "unknown"

// Metadata describes what the answer talks about.
type Metadata struct {
	Intent            string   `json:"intent"`
	MentionedSlots    []string `json:"mentionedSlots"`
	BookedSlots       []string `json:"bookedSlots"`
	MentionedServices []string `json:"mentionedServices"`
	ReferenceDate     string   `json:"referenceDate"`
	Confidence        float64  `json:"confidence"`
}

// Answer is the Final Answer: the only artifact sent to the customer or
// stored as an assistant history entry.
type Answer struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// Fallback synthesizes an answer around text with placeholder metadata.
func Fallback(text string) Answer {
	a := Answer{Text: text, Metadata: Metadata{Intent: IntentUnknown, Confidence: 0}}
	a.normalize()
	return a
}

// Map returns the metadata as a generic map for session storage.
func (m Metadata) Map() map[string]any {
	return map[string]any{
		"intent":            m.Intent,
		"mentionedSlots":    m.MentionedSlots,
		"bookedSlots":       m.BookedSlots,
		"mentionedServices": m.MentionedServices,
		"referenceDate":     m.ReferenceDate,
		"confidence":        m.Confidence,
	}
}

// normalize replaces nil slices so the metadata always encodes as
// arrays, and clamps confidence into [0, 1].
func (a *Answer) normalize() {
	m := &a.Metadata
	if m.Intent == "" {
		m.Intent = IntentUnknown
	}
	if m.MentionedSlots == nil {
		m.MentionedSlots = []string{}
	}
	if m.BookedSlots == nil {
		m.BookedSlots = []string{}
	}
	if m.MentionedServices == nil {
		m.MentionedServices = []string{}
	}
	m.Confidence = max(0, min(1, m.Confidence))
}
