package llm

import (
	"encoding/json"
	"strings"
)

// normalizeTextToolCalls handles models that write a tool call into the
// content instead of the native tool_calls field. When the whole content
// is a recognizable call, it is moved into ToolCalls and the content is
// cleared so raw call syntax never reaches a user.
func normalizeTextToolCalls(msg *Message) {
	if len(msg.ToolCalls) > 0 || strings.TrimSpace(msg.Content) == "" {
		return
	}
	if calls := parseTextToolCalls(msg.Content); len(calls) > 0 {
		msg.ToolCalls = calls
		msg.Content = ""
	}
}

// parseTextToolCalls recognizes:
//   - a raw object: {"name": "...", "arguments": {...}}
//   - an array of such objects
//   - either of the above wrapped in <tool_call>...</tool_call>
func parseTextToolCalls(content string) []ToolCall {
	content = strings.TrimSpace(content)

	if start := strings.Index(content, "<tool_call>"); start != -1 {
		inner := content[start+len("<tool_call>"):]
		if end := strings.Index(inner, "</tool_call>"); end != -1 {
			inner = inner[:end]
		}
		content = strings.TrimSpace(inner)
	}
	if content == "" {
		return nil
	}

	type textCall struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}

	var many []textCall
	if err := json.Unmarshal([]byte(content), &many); err == nil && len(many) > 0 {
		out := make([]ToolCall, 0, len(many))
		for _, c := range many {
			if c.Name == "" {
				return nil
			}
			out = append(out, ToolCall{Function: FunctionCall{Name: c.Name, Arguments: c.Arguments}})
		}
		return out
	}

	var one textCall
	if err := json.Unmarshal([]byte(content), &one); err == nil && one.Name != "" {
		return []ToolCall{{Function: FunctionCall{Name: one.Name, Arguments: one.Arguments}}}
	}
	return nil
}
