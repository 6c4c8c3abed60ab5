package replier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"
	slackapi "github.com/slack-go/slack"
)

type countingReplier struct {
	calls  int
	err    error
	claims func(string) bool
}

func (c *countingReplier) SendReply(context.Context, string, string, string) error {
	c.calls++
	return c.err
}

type claimingReplier struct {
	countingReplier
}

func (c *claimingReplier) Claims(userID string) bool { return c.claims(userID) }

func TestMulti_FanOutAndClaims(t *testing.T) {
	all := &countingReplier{}
	emailOnly := &claimingReplier{countingReplier{claims: func(u string) bool { return strings.Contains(u, "@") }}}

	m := NewMulti(nil)
	m.Add("all", all)
	m.Add("email", emailOnly)

	if err := m.SendReply(context.Background(), "b", "5511999", "oi"); err != nil {
		t.Fatalf("SendReply() error: %v", err)
	}
	if all.calls != 1 || emailOnly.calls != 0 {
		t.Errorf("calls = %d/%d, want 1/0", all.calls, emailOnly.calls)
	}

	if err := m.SendReply(context.Background(), "b", "ana@example.com", "oi"); err != nil {
		t.Fatal(err)
	}
	if emailOnly.calls != 1 {
		t.Errorf("email channel calls = %d, want 1", emailOnly.calls)
	}
}

func TestMulti_Errors(t *testing.T) {
	failing := &countingReplier{err: errors.New("boom")}
	ok := &countingReplier{}

	m := NewMulti(nil)
	m.Add("failing", failing)
	if err := m.SendReply(context.Background(), "b", "u", "oi"); err == nil || !strings.Contains(err.Error(), "failing") {
		t.Errorf("error = %v, want channel failure", err)
	}

	m.Add("ok", ok)
	if err := m.SendReply(context.Background(), "b", "u", "oi"); err != nil {
		t.Errorf("one successful channel should be enough, got %v", err)
	}

	if err := NewMulti(nil).SendReply(context.Background(), "b", "u", "oi"); err == nil {
		t.Error("no channels should be an error")
	}
}

func TestWebhook_PostsJSON(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	if err := NewWebhook(srv.URL, nil).SendReply(context.Background(), "salon-1", "5511999", "Olá"); err != nil {
		t.Fatalf("SendReply() error: %v", err)
	}
	if got.BusinessID != "salon-1" || got.UserID != "5511999" || got.Text != "Olá" {
		t.Errorf("payload = %+v", got)
	}
}

func TestWebhook_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, nil).SendReply(context.Background(), "b", "u", "x")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("error = %v, want status 400", err)
	}
}

func TestHub_DeliversToListener(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "salon-1", r.URL.Query().Get("user_id"))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user_id=ana"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Listeners("salon-1", "ana") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("listener never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := hub.SendReply(context.Background(), "salon-1", "ana", "Agendado!"); err != nil {
		t.Fatal(err)
	}
	// Another user's reply must not arrive on this connection.
	hub.SendReply(context.Background(), "salon-1", "bob", "não é seu")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg HubMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Text != "Agendado!" || msg.UserID != "ana" {
		t.Errorf("message = %+v", msg)
	}
}

func TestHub_NoListenersIsNotAnError(t *testing.T) {
	if err := NewHub(nil).SendReply(context.Background(), "b", "nobody", "x"); err != nil {
		t.Errorf("SendReply() error = %v", err)
	}
}

func TestEmail_ComposeAndSend(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	e := NewEmail(EmailConfig{Host: "smtp.example.com", Port: 587, From: "Studio Bela <agenda@studio.example>"}, nil)
	e.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	if !e.Claims("ana@example.com") || e.Claims("5511999") {
		t.Error("Claims should accept only email addresses")
	}
	if err := e.SendReply(context.Background(), "b", "ana@example.com", "Seu horário é **14:00**."); err != nil {
		t.Fatalf("SendReply() error: %v", err)
	}

	if gotAddr != "smtp.example.com:587" || gotFrom != "agenda@studio.example" || len(gotTo) != 1 || gotTo[0] != "ana@example.com" {
		t.Errorf("envelope = %s %s %v", gotAddr, gotFrom, gotTo)
	}
	msg := string(gotMsg)
	for _, want := range []string{"multipart/alternative", "Seu hor", "<strong>14:00</strong>", "Subject: Sua mensagem"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestMarkdownToPlain(t *testing.T) {
	got := markdownToPlain("## Olá\n**Corte** às *14h*, veja [aqui](https://x.example)")
	want := "Olá\nCorte às 14h, veja aqui (https://x.example)"
	if got != want {
		t.Errorf("markdownToPlain() = %q, want %q", got, want)
	}
}

type mockSlack struct {
	channel string
	calls   int
	errs    []error
}

func (m *mockSlack) PostMessageContext(_ context.Context, channelID string, _ ...slackapi.MsgOption) (string, string, error) {
	m.channel = channelID
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return "", "", err
	}
	return channelID, "1234.5678", nil
}

func TestSlack_SendReply(t *testing.T) {
	mock := &mockSlack{errs: []error{&slackapi.RateLimitedError{RetryAfter: time.Millisecond}}}
	s := newSlack(mock, nil)

	if !s.Claims("slack:U123") || s.Claims("U123") {
		t.Error("Claims should require the slack: prefix")
	}
	if err := s.SendReply(context.Background(), "b", "slack:U123", "oi"); err != nil {
		t.Fatalf("SendReply() error: %v", err)
	}
	if mock.channel != "U123" || mock.calls != 2 {
		t.Errorf("channel/calls = %q/%d, want U123/2 (one rate-limit retry)", mock.channel, mock.calls)
	}
}

type mockDiscord struct {
	recipient string
	sent      []string
}

func (m *mockDiscord) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	m.recipient = recipientID
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (m *mockDiscord) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.sent = append(m.sent, content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func TestDiscord_SendReplySplitsLongText(t *testing.T) {
	mock := &mockDiscord{}
	d := newDiscord(mock, nil)

	long := strings.Repeat("a", 1500) + "\n" + strings.Repeat("b", 1000)
	if err := d.SendReply(context.Background(), "b", "discord:42", long); err != nil {
		t.Fatalf("SendReply() error: %v", err)
	}
	if mock.recipient != "42" {
		t.Errorf("recipient = %q, want 42", mock.recipient)
	}
	if len(mock.sent) != 2 || mock.sent[0] != strings.Repeat("a", 1500) {
		t.Errorf("sent %d chunks, want split at the newline", len(mock.sent))
	}
}
