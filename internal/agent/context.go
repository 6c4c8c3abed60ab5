package agent

import (
	"github.com/nugget/concierge/internal/llm"
)

// TurnContext is the ordered message list the reasoning engine sees
// during one turn. It is seeded from a Bundle and grows with each tool
// exchange and injected instruction. It lives only for the turn.
type TurnContext struct {
	messages []llm.Message
	nudge    int // index of the pending-actions instruction, -1 if none

	// Analysis is the raw plan-analysis text, kept as scratch for
	// logging and tests. It is never shown to the dispatch model.
	Analysis string
}

// NewTurnContext starts a turn from a composed bundle and the
// customer's message.
func NewTurnContext(b Bundle, text string) *TurnContext {
	msgs := make([]llm.Message, 0, len(b.History)+8)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: b.System})
	msgs = append(msgs, b.History...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: text})
	return &TurnContext{messages: msgs, nudge: -1}
}

// Messages returns a copy of the accumulated messages.
func (tc *TurnContext) Messages() []llm.Message {
	return append([]llm.Message(nil), tc.messages...)
}

// Len reports the number of messages.
func (tc *TurnContext) Len() int { return len(tc.messages) }

// AddToolExchange appends the assistant's tool call and its result.
func (tc *TurnContext) AddToolExchange(call llm.ToolCall, result string) {
	tc.messages = append(tc.messages,
		llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{call}},
		llm.Message{Role: llm.RoleTool, Content: result, ToolCallID: call.ID},
	)
}

// AddSystem appends a system-level instruction.
func (tc *TurnContext) AddSystem(text string) {
	tc.messages = append(tc.messages, llm.Message{Role: llm.RoleSystem, Content: text})
}

// SetPending places text as the single pending-actions instruction at
// the end of the context, dropping the previous one. Empty text only
// drops it.
func (tc *TurnContext) SetPending(text string) {
	if tc.nudge >= 0 {
		tc.messages = append(tc.messages[:tc.nudge], tc.messages[tc.nudge+1:]...)
		tc.nudge = -1
	}
	if text == "" {
		return
	}
	tc.messages = append(tc.messages, llm.Message{Role: llm.RoleSystem, Content: text})
	tc.nudge = len(tc.messages) - 1
}
