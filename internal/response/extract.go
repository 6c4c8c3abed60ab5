package response

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// Extract locates the first JSON object in raw that decodes as an
// Answer with non-empty text. Surrounding prose and markdown code
// fences are ignored.
func Extract(raw string) (Answer, bool) {
	for start := strings.IndexByte(raw, '{'); start >= 0; {
		if a, ok := decodeAt(raw[start:]); ok {
			return a, true
		}
		next := strings.IndexByte(raw[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return Answer{}, false
}

// decodeAt decodes one JSON value from the front of s.
func decodeAt(s string) (Answer, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	var probe map[string]json.RawMessage
	if err := dec.Decode(&probe); err != nil {
		return Answer{}, false
	}
	textRaw, ok := probe["text"]
	if !ok {
		return Answer{}, false
	}
	var text string
	if err := json.Unmarshal(textRaw, &text); err != nil || strings.TrimSpace(text) == "" {
		return Answer{}, false
	}

	a := Answer{Text: text}
	if md, ok := probe["metadata"]; ok && !bytes.Equal(bytes.TrimSpace(md), []byte("null")) {
		// Partially wrong metadata is tolerated field by field.
		var loose map[string]json.RawMessage
		if json.Unmarshal(md, &loose) == nil {
			decodeField(loose, "intent", &a.Metadata.Intent)
			decodeField(loose, "mentionedSlots", &a.Metadata.MentionedSlots)
			decodeField(loose, "bookedSlots", &a.Metadata.BookedSlots)
			decodeField(loose, "mentionedServices", &a.Metadata.MentionedServices)
			decodeField(loose, "referenceDate", &a.Metadata.ReferenceDate)
			decodeField(loose, "confidence", &a.Metadata.Confidence)
		}
	}
	a.normalize()
	return a, true
}

func decodeField(m map[string]json.RawMessage, key string, dst any) {
	if raw, ok := m[key]; ok {
		_ = json.Unmarshal(raw, dst)
	}
}

var textField = regexp.MustCompile(`[{,]\s*"text"\s*:\s*"`)

// Salvage recovers customer text from output that Extract rejected.
// A malformed or truncated envelope gives up its "text" string, even
// when the closing quote was cut off. Failing that, brace-delimited
// spans are dropped along with everything after an unbalanced brace.
// Prose without braces is returned unchanged.
func Salvage(raw string) string {
	if loc := textField.FindStringIndex(raw); loc != nil {
		if text := strings.TrimSpace(partialString(raw[loc[1]:])); text != "" {
			return text
		}
	}
	if !strings.Contains(raw, "{") {
		return raw
	}
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' {
			b.WriteByte(raw[i])
			continue
		}
		end := matchBracket(raw, i)
		if end < 0 {
			break
		}
		i = end
	}
	return strings.TrimRight(strings.TrimSpace(b.String()), "[ \t\n")
}

// partialString decodes a JSON string body (the text after its opening
// quote) up to the closing quote or the end of input.
func partialString(s string) string {
	end := len(s)
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == '"' {
			end = i
			break
		}
	}
	body := s[:end]
	if n := len(body) - len(strings.TrimRight(body, `\`)); n%2 == 1 {
		body = body[:len(body)-1]
	}
	var out string
	if err := json.Unmarshal([]byte(`"`+body+`"`), &out); err != nil {
		return body
	}
	return out
}
