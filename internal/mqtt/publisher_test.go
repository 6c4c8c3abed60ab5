package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/concierge/internal/config"
	"github.com/nugget/concierge/internal/events"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*paho.Publish
}

func (f *fakePublisher) Publish(_ context.Context, p *paho.Publish) (*paho.PublishResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, p)
	return &paho.PublishResponse{}, nil
}

func (f *fakePublisher) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	for i, m := range f.msgs {
		out[i] = m.Topic
	}
	return out
}

func newTestPublisher() (*Publisher, *fakePublisher) {
	p := New(config.MQTTConfig{Broker: "mqtt://localhost:1883", TopicPrefix: "salon"}, "0190a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b", events.New(), nil, nil)
	fp := &fakePublisher{}
	p.pub = fp
	return p, fp
}

func TestTopics(t *testing.T) {
	p, _ := newTestPublisher()
	if got := p.EventTopic(events.KindToolDone); got != "salon/events/tool_done" {
		t.Errorf("EventTopic = %q", got)
	}
	if got := p.availabilityTopic(); got != "salon/availability" {
		t.Errorf("availabilityTopic = %q", got)
	}
	if got := p.statusTopic(); got != "salon/status" {
		t.Errorf("statusTopic = %q", got)
	}
}

func TestClientID(t *testing.T) {
	got := clientID("0190a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b")
	if got != "concierge-0c1d2e3f4a5b" {
		t.Errorf("clientID = %q", got)
	}
}

func TestForward_PublishesEventAndCountsTokens(t *testing.T) {
	p, fp := newTestPublisher()
	ctx := context.Background()

	p.forward(ctx, events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceAgent,
		Kind:      events.KindLLMResponse,
		Data:      map[string]any{"request_id": "r1", "tokens_in": 120, "tokens_out": 30},
	})
	p.forward(ctx, events.Event{Kind: events.KindRequestComplete, Data: map[string]any{"request_id": "r1"}})

	topics := fp.topics()
	if len(topics) != 2 || topics[0] != "salon/events/llm_response" || topics[1] != "salon/events/request_complete" {
		t.Fatalf("topics = %v", topics)
	}

	var got events.Event
	if err := json.Unmarshal(fp.msgs[0].Payload, &got); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if got.Data["request_id"] != "r1" {
		t.Errorf("payload data = %v", got.Data)
	}

	in, out, turns := p.tokens.Snapshot()
	if in != 120 || out != 30 || turns != 1 {
		t.Errorf("tokens = %d/%d turns %d, want 120/30 turns 1", in, out, turns)
	}
}

func TestRun_StatusAndShutdown(t *testing.T) {
	p, fp := newTestPublisher()
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan events.Event, 1)
	tick := make(chan time.Time)

	done := make(chan struct{})
	go func() {
		p.run(ctx, ch, tick)
		close(done)
	}()

	ch <- events.Event{Kind: events.KindPlan}
	tick <- time.Now()
	cancel()
	<-done

	topics := fp.topics()
	if len(topics) != 3 {
		t.Fatalf("published %v, want status, event, status", topics)
	}
	if topics[0] != "salon/status" || topics[1] != "salon/events/plan" || topics[2] != "salon/status" {
		t.Errorf("topics = %v", topics)
	}
	if !fp.msgs[2].Retain {
		t.Error("status should be retained")
	}
	var st Status
	if err := json.Unmarshal(fp.msgs[2].Payload, &st); err != nil {
		t.Fatal(err)
	}
	if st.LastEventKind != events.KindPlan {
		t.Errorf("last_event = %q, want plan", st.LastEventKind)
	}
}

func TestDailyTokens_ResetsAtMidnight(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 10, 18, 23, 59, 0, 0, loc)
	d := NewDailyTokens(loc)
	d.now = func() time.Time { return now }
	d.resetDay = now.YearDay()

	d.AddTokens(10, 5)
	d.AddTurn()
	if in, out, turns := d.Snapshot(); in != 10 || out != 5 || turns != 1 {
		t.Fatalf("before midnight = %d/%d/%d", in, out, turns)
	}

	now = now.Add(2 * time.Minute)
	if in, out, turns := d.Snapshot(); in != 0 || out != 0 || turns != 0 {
		t.Errorf("after midnight = %d/%d/%d, want zeros", in, out, turns)
	}
}

func TestLoadOrCreateInstanceID_Stable(t *testing.T) {
	dir := t.TempDir()
	first, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if first == "" || first != second {
		t.Errorf("ids = %q, %q, want stable non-empty", first, second)
	}
}
