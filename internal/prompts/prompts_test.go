package prompts

import (
	"strings"
	"testing"
	"time"
)

func TestSystemPrompt_InjectsDateAndSchema(t *testing.T) {
	now := time.Date(2026, 3, 9, 10, 30, 0, 0, time.UTC)
	got := SystemPrompt(SystemParams{
		BusinessName:   "Studio Bela",
		Services:       []ServiceLine{{Name: "Corte de Cabelo", DurationMinutes: 30, Price: 50}},
		OpenHour:       9,
		CloseHour:      18,
		ContactChannel: "WhatsApp (11) 5555-0000",
		Now:            now,
	})

	for _, want := range []string{
		"Studio Bela",
		"2026-03-09 10:30",
		"Tomorrow: 2026-03-10",
		`"bookedSlots"`,
		"Corte de Cabelo (30 min, R$ 50.00)",
		"09:00 to 18:00",
		"WhatsApp (11) 5555-0000",
		"Be warm",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestSystemPrompt_PersonaIsolated(t *testing.T) {
	a := SystemPrompt(SystemParams{BusinessName: "A", Persona: "persona A"})
	b := SystemPrompt(SystemParams{BusinessName: "B", Persona: "persona B"})
	if strings.Contains(b, "persona A") || strings.Contains(a, "persona B") {
		t.Error("persona text leaked across prompts")
	}
}

func TestPendingInstruction(t *testing.T) {
	got := PendingInstruction([]string{"Barba at 15:00 on tomorrow"})
	if !strings.Contains(got, "- Barba at 15:00 on tomorrow") {
		t.Errorf("pending item not listed: %s", got)
	}
	if !strings.Contains(got, "Do NOT ask") {
		t.Error("instruction must forbid re-asking")
	}
}

func TestReviewPrompt_Placeholders(t *testing.T) {
	got := ReviewPrompt("", "", "", "Olá!")
	for _, want := range []string{"(none)", "(first message)", "(no actions executed)", "Olá!", ReviewApproved} {
		if !strings.Contains(got, want) {
			t.Errorf("review prompt missing %q", want)
		}
	}
}

func TestCannedTexts(t *testing.T) {
	tests := []struct {
		name        string
		got         string
		wantContain []string
		wantAbsent  []string
	}{
		{
			name:        "partial",
			got:         PartialText([]string{"Corte de Cabelo"}, []string{"Barba"}),
			wantContain: []string{"Confirmei Corte de Cabelo", "Não consegui concluir Barba", "reconfirmar"},
			wantAbsent:  []string{"Confirmei Corte de Cabelo e Barba"},
		},
		{
			name:        "retry",
			got:         RetryText([]string{"Corte de Cabelo", "Barba", "Manicure"}),
			wantContain: []string{"Corte de Cabelo, Barba e Manicure", "tentar de novo"},
		},
		{
			name:        "apology",
			got:         ApologyText("a recepção"),
			wantContain: []string{"a recepção"},
			wantAbsent:  []string{"error", "erro:"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, w := range tt.wantContain {
				if !strings.Contains(tt.got, w) {
					t.Errorf("%q missing %q", tt.got, w)
				}
			}
			for _, w := range tt.wantAbsent {
				if strings.Contains(tt.got, w) {
					t.Errorf("%q should not contain %q", tt.got, w)
				}
			}
		})
	}
}
