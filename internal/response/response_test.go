package response

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nugget/concierge/internal/plan"
	"github.com/nugget/concierge/internal/prompts"
)

type stubRepairer struct {
	out   string
	err   error
	calls int
}

func (s *stubRepairer) Repair(context.Context, string) (string, error) {
	s.calls++
	return s.out, s.err
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		ok     bool
		text   string
		intent string
	}{
		{"bare", `{"text":"Olá!","metadata":{"intent":"greeting","confidence":0.9}}`, true, "Olá!", "greeting"},
		{"fenced", "```json\n{\"text\":\"Pronto\",\"metadata\":{\"intent\":\"booking\"}}\n```", true, "Pronto", "booking"},
		{"prose around", `Here you go: {"text":"Oi","metadata":{}} hope it helps`, true, "Oi", IntentUnknown},
		{"nested first object invalid", `{"a":1} {"text":"segundo"}`, true, "segundo", IntentUnknown},
		{"missing text", `{"metadata":{"intent":"booking"}}`, false, "", ""},
		{"empty text", `{"text":"  ","metadata":{}}`, false, "", ""},
		{"free text", "Claro, temos horário às 14h.", false, "", ""},
		{"truncated", `{"text":"Oi", "metadata": {`, false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := Extract(tt.raw)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if a.Text != tt.text || a.Metadata.Intent != tt.intent {
				t.Errorf("got %q/%q, want %q/%q", a.Text, a.Metadata.Intent, tt.text, tt.intent)
			}
			if a.Metadata.BookedSlots == nil || a.Metadata.MentionedSlots == nil {
				t.Error("slot lists should never be nil")
			}
		})
	}
}

func TestExtract_ToleratesBadMetadataField(t *testing.T) {
	a, ok := Extract(`{"text":"Oi","metadata":{"intent":"booking","confidence":"high","bookedSlots":["14:00"]}}`)
	if !ok {
		t.Fatal("expected answer")
	}
	if a.Metadata.Confidence != 0 || a.Metadata.Intent != "booking" || len(a.Metadata.BookedSlots) != 1 {
		t.Errorf("metadata = %+v", a.Metadata)
	}
}

func TestValidate_ParsedSkipsRepair(t *testing.T) {
	rep := &stubRepairer{}
	v := NewValidator(rep, nil, "a recepção", nil)

	a, how := v.Validate(context.Background(), `{"text":"Agendado!","metadata":{"intent":"booking","bookedSlots":["14:00"],"confidence":0.8}}`)
	if how != Parsed {
		t.Errorf("outcome = %v, want parsed", how)
	}
	if rep.calls != 0 {
		t.Errorf("repair calls = %d, want 0", rep.calls)
	}
	if a.Text != "Agendado!" {
		t.Errorf("text = %q", a.Text)
	}
}

func TestValidate_FreeTextFallsBackAfterOneRepair(t *testing.T) {
	raw := "Claro! Temos horário amanhã às 14h e às 15h."
	rep := &stubRepairer{out: "still not json"}
	v := NewValidator(rep, nil, "a recepção", nil)

	a, how := v.Validate(context.Background(), raw)
	if rep.calls != 1 {
		t.Errorf("repair calls = %d, want exactly 1", rep.calls)
	}
	if how != Synthesized {
		t.Errorf("outcome = %v, want synthesized", how)
	}
	if a.Text != raw {
		t.Errorf("text = %q, want raw text unmodified", a.Text)
	}
	if a.Metadata.Intent != IntentUnknown || a.Metadata.Confidence != 0 {
		t.Errorf("metadata = %+v, want unknown/0", a.Metadata)
	}
}

func TestValidate_RepairSucceeds(t *testing.T) {
	rep := &stubRepairer{out: `{"text":"Temos 14h livre.","metadata":{"intent":"availability","mentionedSlots":["14:00"]}}`}
	v := NewValidator(rep, nil, "a recepção", nil)

	a, how := v.Validate(context.Background(), "Temos 14h livre.")
	if how != Repaired {
		t.Fatalf("outcome = %v, want repaired", how)
	}
	if a.Metadata.Intent != "availability" {
		t.Errorf("intent = %q", a.Metadata.Intent)
	}
}

func TestValidate_RepairErrorFallsBack(t *testing.T) {
	rep := &stubRepairer{err: errors.New("timeout")}
	v := NewValidator(rep, nil, "a recepção", nil)

	a, how := v.Validate(context.Background(), "Olá")
	if how != Synthesized || a.Text != "Olá" {
		t.Errorf("got %v %q", how, a.Text)
	}
}

func TestValidate_EmptyRawUsesApology(t *testing.T) {
	rep := &stubRepairer{}
	v := NewValidator(rep, nil, "a recepção", nil)

	a, _ := v.Validate(context.Background(), "   ")
	if rep.calls != 0 {
		t.Errorf("blank drafts should not be repaired")
	}
	if a.Text != prompts.ApologyText("a recepção") {
		t.Errorf("text = %q, want apology", a.Text)
	}
}

func TestValidate_AlwaysWellFormed(t *testing.T) {
	apology := prompts.ApologyText("a recepção")
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"valid envelope", `{"text":"Até amanhã!","metadata":{"intent":"greeting"}}`, "Até amanhã!"},
		{"truncated envelope",
			`{"text": "Seu horário das 14:00 está confirmado!", "metadata": {"intent": "booking", "bookedSlots": ["14:00"]`,
			"Seu horário das 14:00 está confirmado!"},
		{"cut inside text", `{"text": "Temos vaga às 15h e \"às 16h`, `Temos vaga às 15h e "às 16h`},
		{"metadata first", `{"metadata": {"intent": "info"}, "text": "Abrimos às 9h.", "meta`, "Abrimos às 9h."},
		{"prose then broken json", `Claro, já verifico. {"metadata": {"intent":`, "Claro, já verifico."},
		{"invalid json", `{text: 'Oi', metadata: {}}`, apology},
		{"missing text field", `{"metadata":{"intent":"booking","confidence":0.9}}`, apology},
		{"non-string text", `{"text": 42, "metadata": {}}`, apology},
		{"empty string", "", apology},
		{"plain prose", "Claro! Temos horário às 14h.", "Claro! Temos horário às 14h."},
		{"camel case brand", "Pode trazer seu iPhone (carregado) para o atendimento.",
			"Pode trazer seu iPhone (carregado) para o atendimento."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := &stubRepairer{err: errors.New("repair unavailable")}
			v := NewValidator(rep, NewSanitizer([]string{"createAppointment"}), "a recepção", nil)

			a, _ := v.Validate(context.Background(), tt.raw)
			if strings.TrimSpace(a.Text) == "" {
				t.Fatal("text is empty")
			}
			if strings.Contains(a.Text, "{") || strings.Contains(a.Text, `"metadata"`) {
				t.Errorf("text = %q leaks a JSON envelope", a.Text)
			}
			if a.Text != tt.want {
				t.Errorf("text = %q, want %q", a.Text, tt.want)
			}
			if a.Metadata.BookedSlots == nil || a.Metadata.Intent == "" {
				t.Errorf("metadata not normalized: %+v", a.Metadata)
			}
		})
	}
}

func TestValidate_TruncatedEnvelopeRepairedOnce(t *testing.T) {
	rep := &stubRepairer{err: errors.New("max tokens")}
	v := NewValidator(rep, nil, "a recepção", nil)

	a, how := v.Validate(context.Background(), `{"text": "Seu horário das 14:00 está confirmado!", "metadata": {"intent": "booking"`)
	if rep.calls != 1 || how != Synthesized {
		t.Fatalf("repairs=%d outcome=%v, want 1/synthesized", rep.calls, how)
	}
	if a.Text != "Seu horário das 14:00 está confirmado!" {
		t.Errorf("text = %q", a.Text)
	}
	if a.Metadata.Confidence != 0 || a.Metadata.Intent != IntentUnknown {
		t.Errorf("metadata = %+v, want placeholder", a.Metadata)
	}
}

func TestSanitizer_Clean(t *testing.T) {
	s := NewSanitizer([]string{"createAppointment"})
	tests := []struct {
		name    string
		in      string
		want    string
		notWant []string
	}{
		{"plain prose unchanged", "Olá! Tudo bem?  Como posso ajudar?", "Olá! Tudo bem?  Como posso ajudar?", nil},
		{"tool call tag", "Vou verificar.<tool_call>{\"name\":\"checkAvailability\"}</tool_call>", "Vou verificar.", []string{"tool_call"}},
		{"json envelope", `Pronto! {"error":"slot taken"}`, "Pronto!", []string{"error"}},
		{"html", "<p>Agendado para <b>14:00</b></p>", "Agendado para 14:00", []string{"<b>"}},
		{"error line", "Não foi possível.\nerror: sql: no rows in result set", "Não foi possível.", []string{"sql"}},
		{"tool name line", "Chamei createAppointment para você.\nAté logo!", "Até logo!", []string{"createAppointment"}},
		{"code fence", "Veja:\n```json\n{\"a\":1}\n```\nObrigado", "Veja:\n\nObrigado", nil},
		{"camel case brand", "Pode trazer seu iPhone (carregado) para o atendimento.", "Pode trazer seu iPhone (carregado) para o atendimento.", nil},
		{"tool name as call", "Pronto.\ncreateAppointment({\"time\":\"14:00\"})", "Pronto.", []string{"createAppointment"}},
		{"tool name is whole word", "Veja createAppointments antigos.", "Veja createAppointments antigos.", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Clean(tt.in)
			if got != tt.want {
				t.Errorf("Clean() = %q, want %q", got, tt.want)
			}
			for _, bad := range tt.notWant {
				if strings.Contains(got, bad) {
					t.Errorf("Clean() = %q still contains %q", got, bad)
				}
			}
		})
	}
}

func TestRewritePending(t *testing.T) {
	cut := plan.Action{Service: "Corte de Cabelo", Time: "14:00", Date: plan.DateTomorrow}
	beard := plan.Action{Service: "Barba", Time: "15:00", Date: plan.DateTomorrow}
	base := Fallback("Tudo certo, agendei os dois!")
	base.Metadata.Confidence = 0.9

	t.Run("nothing pending", func(t *testing.T) {
		a, changed := RewritePending(base, nil, []plan.Action{cut}, nil)
		if changed || a.Text != base.Text {
			t.Error("answer should be unchanged")
		}
	})

	t.Run("none succeeded", func(t *testing.T) {
		a, changed := RewritePending(base, []plan.Action{cut}, nil, []plan.Action{cut})
		if !changed {
			t.Fatal("expected rewrite")
		}
		if a.Text != prompts.RetryText([]string{cut.Label()}) {
			t.Errorf("text = %q", a.Text)
		}
		if a.Metadata.Confidence > 0.5 {
			t.Errorf("confidence = %v, want lowered", a.Metadata.Confidence)
		}
	})

	t.Run("partial", func(t *testing.T) {
		a, _ := RewritePending(base, []plan.Action{beard}, []plan.Action{cut}, []plan.Action{beard})
		if !strings.Contains(a.Text, "Corte de Cabelo às 14:00") || !strings.Contains(a.Text, "Barba às 15:00") {
			t.Errorf("text = %q, want both labels", a.Text)
		}
		if !strings.HasPrefix(a.Text, "Confirmei") {
			t.Errorf("text = %q, want partial wording", a.Text)
		}
	})
}

func TestGroundBookedSlots(t *testing.T) {
	records := []plan.Record{
		{Tool: "createAppointment", Args: map[string]any{"service": "Barba", "time": "14h"}, Success: true},
		{Tool: "createAppointment", Args: map[string]any{"service": "Corte", "time": "16:00"}, Success: false},
		{Tool: "checkAvailability", Args: map[string]any{"time": "17:00"}, Success: true},
		{Tool: "createAppointment", Args: map[string]any{"service": "Corte", "time": "14:00"}, Success: true},
	}
	a := Fallback("ok")
	a.Metadata.BookedSlots = []string{"16:00", "18:00"}

	got := GroundBookedSlots(a, records, "createAppointment").Metadata.BookedSlots
	if len(got) != 1 || got[0] != "14:00" {
		t.Errorf("bookedSlots = %v, want [14:00]", got)
	}
}
