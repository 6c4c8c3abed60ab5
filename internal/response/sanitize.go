package response

import (
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	toolCallTag  = regexp.MustCompile(`(?s)<tool_call>.*?(</tool_call>|$)`)
	codeFence    = regexp.MustCompile("(?s)```[a-zA-Z]*\\n?.*?(```|$)")
	htmlTag      = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
	spaceRuns    = regexp.MustCompile(`[ \t]{2,}`)
	errorDetail  = regexp.MustCompile(`(?i)(traceback|stack trace|exception|panic:|\berror:|\bstatus \d{3}\b|\bsql:|deadline exceeded|connection refused|permission denied|not available in this context)`)
)

// Sanitizer strips machine artifacts from customer-facing text.
type Sanitizer struct {
	toolName *regexp.Regexp // nil when no tools are registered
}

// NewSanitizer creates a sanitizer that also drops lines naming any of
// the given tools as a whole word.
func NewSanitizer(toolNames []string) *Sanitizer {
	quoted := make([]string, 0, len(toolNames))
	for _, n := range toolNames {
		if n != "" {
			quoted = append(quoted, regexp.QuoteMeta(n))
		}
	}
	if len(quoted) == 0 {
		return &Sanitizer{}
	}
	return &Sanitizer{toolName: regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)}
}

// Clean removes tool-call tags, code fences, embedded JSON, HTML markup
// and lines carrying internal error detail. Plain prose passes through
// unchanged.
func (s *Sanitizer) Clean(text string) string {
	out := toolCallTag.ReplaceAllString(text, "")
	out = codeFence.ReplaceAllString(out, "")
	out = stripJSON(out)
	if htmlTag.MatchString(out) {
		out = stripHTML(out)
	}

	lines := strings.Split(out, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if s.leaks(line) {
			continue
		}
		kept = append(kept, line)
	}
	out = strings.Join(kept, "\n")

	if out == text {
		return text
	}
	out = spaceRuns.ReplaceAllString(out, " ")
	out = blankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

func (s *Sanitizer) leaks(line string) bool {
	if errorDetail.MatchString(line) {
		return true
	}
	return s.toolName != nil && s.toolName.MatchString(line)
}

// stripJSON removes balanced {...} or [...] spans that are valid JSON.
func stripJSON(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		c := s[i]
		if c == '{' || c == '[' {
			if end := matchBracket(s, i); end > i && json.Valid([]byte(s[i:end+1])) && (c == '{' || strings.Contains(s[i:end+1], "{")) {
				i = end + 1
				continue
			}
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

// matchBracket returns the index of the bracket closing s[open], or -1.
func matchBracket(s string, open int) int {
	depth := 0
	inString := false
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case inString:
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// stripHTML keeps only the text content of markup.
func stripHTML(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			if name, _ := z.TagName(); string(name) == "br" || string(name) == "p" {
				b.WriteByte('\n')
			}
		}
	}
}
