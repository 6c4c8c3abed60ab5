package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nugget/concierge/internal/llm"
	"github.com/nugget/concierge/internal/plan"
	"github.com/nugget/concierge/internal/prompts"
	"github.com/nugget/concierge/internal/session"
	"github.com/nugget/concierge/internal/tools"
	"github.com/nugget/concierge/internal/usage"
)

const (
	chatModel   = "chat-model"
	formatModel = "format-model"
	contact     = "a recepção"
)

// mockLLM returns pre-configured responses per model in sequence and
// records each call.
type mockLLM struct {
	mu     sync.Mutex
	queues map[string][]mockReply
	calls  []mockLLMCall
}

type mockReply struct {
	resp *llm.ChatResponse
	err  error
}

type mockLLMCall struct {
	Model    string
	Messages []llm.Message
	Tools    []map[string]any
	Options  llm.Options
}

func newMockLLM() *mockLLM {
	return &mockLLM{queues: make(map[string][]mockReply)}
}

func (m *mockLLM) on(model string, replies ...mockReply) *mockLLM {
	m.queues[model] = append(m.queues[model], replies...)
	return m
}

func (m *mockLLM) Chat(_ context.Context, model string, msgs []llm.Message, td []map[string]any, opts llm.Options) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, mockLLMCall{Model: model, Messages: msgs, Tools: td, Options: opts})

	q := m.queues[model]
	if len(q) == 0 {
		return nil, &llm.ProviderError{Provider: "mock", Err: fmt.Errorf("no more responses for %s", model)}
	}
	m.queues[model] = q[1:]
	return q[0].resp, q[0].err
}

func (m *mockLLM) Ping(context.Context) error { return nil }

func (m *mockLLM) callsFor(model string) []mockLLMCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockLLMCall
	for _, c := range m.calls {
		if c.Model == model {
			out = append(out, c)
		}
	}
	return out
}

func text(s string) mockReply {
	return mockReply{resp: &llm.ChatResponse{
		Model:        "mock",
		Message:      llm.Message{Role: llm.RoleAssistant, Content: s},
		InputTokens:  10,
		OutputTokens: 5,
	}}
}

func toolCall(name string, args map[string]any) mockReply {
	return mockReply{resp: &llm.ChatResponse{
		Model: "mock",
		Message: llm.Message{
			Role:      llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{Function: llm.FunctionCall{Name: name, Arguments: args}}},
		},
	}}
}

func providerDown() mockReply {
	return mockReply{err: &llm.ProviderError{Provider: "mock", Status: 503, Err: errors.New("unavailable")}}
}

type sentReply struct {
	business, user, text string
}

type recordingReplier struct {
	mu   sync.Mutex
	sent []sentReply
	err  error
}

func (r *recordingReplier) SendReply(_ context.Context, business, user, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentReply{business, user, text})
	return r.err
}

type recordingUsage struct {
	mu       sync.Mutex
	purposes []string
}

func (r *recordingUsage) Record(_ context.Context, rec usage.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purposes = append(r.purposes, rec.Purpose)
	return nil
}

type harness struct {
	coord    *Coordinator
	llm      *mockLLM
	sessions *session.MemoryStore
	replier  *recordingReplier
	usage    *recordingUsage
	booked   []map[string]any
}

func testCatalog() *plan.Catalog {
	return plan.NewCatalog([]plan.Service{
		{Name: "Corte de Cabelo", Aliases: []string{"corte", "cortar o cabelo"}},
		{Name: "Barba", Aliases: []string{"fazer a barba"}},
	})
}

func newHarness(t *testing.T, m *mockLLM, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		llm:      m,
		sessions: session.NewMemoryStore(),
		replier:  &recordingReplier{},
		usage:    &recordingUsage{},
	}

	reg := tools.NewRegistry(nil)
	reg.Register(&tools.Tool{
		Name: "listServices",
		Handler: func(context.Context, map[string]any) (string, error) {
			return `{"services":["Corte de Cabelo","Barba"]}`, nil
		},
	})
	reg.Register(&tools.Tool{
		Name: "createAppointment",
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			if args["time"] == "15:00" {
				return "", errors.New("slot already taken")
			}
			h.booked = append(h.booked, args)
			return `{"status":"booked"}`, nil
		},
	})
	reg.Register(&tools.Tool{
		Name:       "listAppointments",
		Privileged: true,
		Handler: func(context.Context, map[string]any) (string, error) {
			return `{"appointments":[]}`, nil
		},
	})

	cfg := Config{
		ChatModel:       chatModel,
		FormatModel:     formatModel,
		ChatTemperature: 0.7,
		MaxIterations:   5,
		PromptHistory:   10,
		SessionHistory:  20,
		ActionLog:       10,
		SessionTTL:      time.Hour,
		ReconcileTools:  []string{"createAppointment"},
		Review:          true,
		Persona: Persona{
			BusinessName:   "Studio Bela",
			ContactChannel: contact,
			OpenHour:       9,
			CloseHour:      18,
			Services:       []prompts.ServiceLine{{Name: "Corte de Cabelo", DurationMinutes: 30, Price: 50}},
			Location:       time.UTC,
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h.coord = New(cfg, Deps{
		LLM:      m,
		Registry: reg,
		Catalog:  testCatalog(),
		Sessions: h.sessions,
		Replier:  h.replier,
		Usage:    h.usage,
	})
	return h
}

func (h *harness) send(t *testing.T, msg string, privileged bool) *Reply {
	t.Helper()
	reply, err := h.coord.HandleMessage(context.Background(), Inbound{
		BusinessID: "salon-1",
		UserID:     "5511999",
		Name:       "Ana",
		Text:       msg,
		Privileged: privileged,
	})
	if err != nil {
		t.Fatalf("HandleMessage() error: %v", err)
	}
	if len(h.replier.sent) != 1 {
		t.Fatalf("replies sent = %d, want exactly 1", len(h.replier.sent))
	}
	return reply
}

func noReview(c *Config) { c.Review = false }

func toolNames(defs []map[string]any) []string {
	var names []string
	for _, d := range defs {
		fn, ok := d["function"].(map[string]any)
		if !ok {
			continue
		}
		if name, ok := fn["name"].(string); ok {
			names = append(names, name)
		}
	}
	return names
}

func hasName(names []string, target string) bool {
	for _, n := range names {
		if n == target {
			return true
		}
	}
	return false
}

func hasMessage(msgs []llm.Message, role, substr string) bool {
	for _, m := range msgs {
		if m.Role == role && strings.Contains(m.Content, substr) {
			return true
		}
	}
	return false
}
