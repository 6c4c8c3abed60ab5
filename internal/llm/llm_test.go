package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaChat_SendsTemperatureZero(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":"oi"},"done":true,"prompt_eval_count":7,"eval_count":3}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, nil)
	resp, err := c.Chat(context.Background(), "m", []Message{{Role: RoleUser, Content: "hi"}}, nil, Deterministic)
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if resp.Message.Content != "oi" {
		t.Errorf("content = %q, want %q", resp.Message.Content, "oi")
	}
	if resp.InputTokens != 7 || resp.OutputTokens != 3 {
		t.Errorf("tokens = %d/%d, want 7/3", resp.InputTokens, resp.OutputTokens)
	}

	opts, ok := got["options"].(map[string]any)
	if !ok {
		t.Fatalf("options missing from request: %v", got)
	}
	if temp, ok := opts["temperature"]; !ok || temp.(float64) != 0 {
		t.Errorf("temperature = %v, want explicit 0", opts["temperature"])
	}
}

func TestOllamaChat_TextToolCallNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":"<tool_call>{\"name\":\"listServices\",\"arguments\":{}}</tool_call>"},"done":true}`))
	}))
	defer srv.Close()

	resp, err := NewOllamaClient(srv.URL, nil).Chat(context.Background(), "m", nil, nil, Options{})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if len(resp.Message.ToolCalls) != 1 || resp.Message.ToolCalls[0].Function.Name != "listServices" {
		t.Fatalf("tool calls = %+v, want listServices", resp.Message.ToolCalls)
	}
	if resp.Message.Content != "" {
		t.Errorf("content should be cleared, got %q", resp.Message.Content)
	}
}

func TestOllamaChat_ErrorIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaClient(srv.URL, nil).Chat(context.Background(), "m", nil, nil, Options{})
	if !IsProviderError(err) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	var pe *ProviderError
	errors.As(err, &pe)
	if pe.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", pe.Status)
	}
}

func TestAnthropicChat_ToolUse(t *testing.T) {
	var req anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "k" {
			t.Errorf("missing api key header")
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Write([]byte(`{"model":"claude","role":"assistant","content":[
			{"type":"text","text":"checking"},
			{"type":"tool_use","id":"tu_1","name":"checkAvailability","input":{"date":"2026-10-19"}}
		],"stop_reason":"tool_use","usage":{"input_tokens":10,"output_tokens":4}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("k", nil)
	c.endpoint = srv.URL

	msgs := []Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "tem horário amanhã?"},
		{Role: RoleSystem, Content: "pending nudge"},
	}
	tools := []map[string]any{{"type": "function", "function": map[string]any{"name": "checkAvailability", "description": "d"}}}

	resp, err := c.Chat(context.Background(), "claude", msgs, tools, Options{Temperature: 0.7})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if req.System != "persona\n\npending nudge" {
		t.Errorf("system = %q, want both system parts joined", req.System)
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != "checkAvailability" {
		t.Errorf("tools = %+v", req.Tools)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "tu_1" || tc.Function.Arguments["date"] != "2026-10-19" {
		t.Errorf("tool call = %+v", tc)
	}
}

func TestConvertToAnthropic_ToolResult(t *testing.T) {
	msgs := []Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{Function: FunctionCall{Name: "listServices"}}}},
		{Role: RoleTool, Content: `{"services":[]}`, ToolCallID: "toolu_listServices_0"},
	}
	out, _ := convertToAnthropic(msgs)
	if len(out) != 2 {
		t.Fatalf("converted %d messages, want 2", len(out))
	}
	blocks, ok := out[0].Content.([]anthropicContent)
	if !ok || blocks[0].Type != "tool_use" || blocks[0].ID != "toolu_listServices_0" {
		t.Errorf("assistant blocks = %+v", out[0].Content)
	}
	if out[1].Role != RoleUser {
		t.Errorf("tool result role = %q, want user", out[1].Role)
	}
}

func TestParseTextToolCalls(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"object", `{"name":"a","arguments":{"x":1}}`, 1},
		{"array", `[{"name":"a","arguments":{}},{"name":"b","arguments":{}}]`, 2},
		{"tagged unclosed", `<tool_call>{"name":"a","arguments":{}}`, 1},
		{"final answer json", `{"text":"oi","metadata":{}}`, 0},
		{"prose", "Olá! Como posso ajudar?", 0},
	}
	for _, tt := range tests {
		if got := parseTextToolCalls(tt.content); len(got) != tt.want {
			t.Errorf("%s: parsed %d calls, want %d", tt.name, len(got), tt.want)
		}
	}
}

type fakeClient struct {
	name    string
	pingErr error
}

func (f *fakeClient) Chat(context.Context, string, []Message, []map[string]any, Options) (*ChatResponse, error) {
	return &ChatResponse{Model: f.name}, nil
}
func (f *fakeClient) Ping(context.Context) error { return f.pingErr }

func TestMultiClient_Routing(t *testing.T) {
	m := NewMultiClient("ollama")
	m.AddProvider("ollama", &fakeClient{name: "ollama"})
	m.AddProvider("anthropic", &fakeClient{name: "anthropic"})
	if err := m.AddModel("claude", "anthropic"); err != nil {
		t.Fatalf("AddModel() error: %v", err)
	}

	for model, want := range map[string]string{"claude": "anthropic", "qwen": "ollama"} {
		resp, err := m.Chat(context.Background(), model, nil, nil, Options{})
		if err != nil {
			t.Fatalf("Chat(%q) error: %v", model, err)
		}
		if resp.Model != want {
			t.Errorf("Chat(%q) routed to %q, want %q", model, resp.Model, want)
		}
	}

	if _, err := NewMultiClient("ollama").Chat(context.Background(), "x", nil, nil, Options{}); !IsProviderError(err) {
		t.Errorf("missing provider error = %v, want *ProviderError", err)
	}
}

func TestMultiClient_AddModelUnknownProvider(t *testing.T) {
	m := NewMultiClient("ollama")
	m.AddProvider("ollama", &fakeClient{name: "ollama"})
	if err := m.AddModel("claude", "anthropic"); err == nil {
		t.Fatal("AddModel() with unregistered provider should error")
	}
	if got := m.Provider("claude"); got != "ollama" {
		t.Errorf("Provider(claude) = %q, want fallback", got)
	}
}

func TestMultiClient_PingChecksRoutedProviders(t *testing.T) {
	m := NewMultiClient("ollama")
	m.AddProvider("ollama", &fakeClient{name: "ollama"})
	m.AddProvider("anthropic", &fakeClient{name: "anthropic", pingErr: errors.New("401")})

	if err := m.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() with no anthropic routes = %v, want nil", err)
	}
	if err := m.AddModel("claude", "anthropic"); err != nil {
		t.Fatal(err)
	}
	if err := m.Ping(context.Background()); err == nil {
		t.Fatal("Ping() should report the failing routed provider")
	}
}
