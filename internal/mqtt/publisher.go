package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/concierge/internal/buildinfo"
	"github.com/nugget/concierge/internal/config"
	"github.com/nugget/concierge/internal/events"
)

const statusInterval = time.Minute

// publisher abstracts the connection manager for tests.
type publisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// Status is the retained document published on <prefix>/status.
type Status struct {
	Version       string `json:"version"`
	Uptime        string `json:"uptime"`
	TokensInput   int64  `json:"tokens_input_today"`
	TokensOutput  int64  `json:"tokens_output_today"`
	TurnsToday    int64  `json:"turns_today"`
	LastEventKind string `json:"last_event,omitempty"`
}

// Publisher forwards bus events to the broker.
type Publisher struct {
	cfg        config.MQTTConfig
	instanceID string
	bus        *events.Bus
	tokens     *DailyTokens
	logger     *slog.Logger
	pub        publisher
	lastKind   string // owned by the run goroutine

	mu sync.Mutex
	cm *autopaho.ConnectionManager
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to connect and begin forwarding.
func New(cfg config.MQTTConfig, instanceID string, bus *events.Bus, tokens *DailyTokens, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if tokens == nil {
		tokens = NewDailyTokens(nil)
	}
	return &Publisher{
		cfg:        cfg,
		instanceID: instanceID,
		bus:        bus,
		tokens:     tokens,
		logger:     logger.With("component", "mqtt"),
	}
}

// Start connects to the broker and forwards events until ctx is
// cancelled.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID(p.instanceID),
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	// The connection outlives ctx so Stop can still publish "offline".
	cm, err := autopaho.NewConnection(context.WithoutCancel(ctx), pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.mu.Lock()
	p.cm = cm
	p.mu.Unlock()
	p.pub = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	ch := p.bus.Subscribe(256)
	defer p.bus.Unsubscribe(ch)
	p.run(ctx, ch, time.NewTicker(statusInterval).C)
	return nil
}

// Stop publishes "offline" and disconnects.
func (p *Publisher) Stop(ctx context.Context) error {
	cm := p.conn()
	if cm == nil {
		return nil
	}
	p.publishAvailability(ctx, cm, "offline")
	return cm.Disconnect(ctx)
}

// AwaitConnection blocks until the broker connection is up. It is used
// as a health probe.
func (p *Publisher) AwaitConnection(ctx context.Context) error {
	cm := p.conn()
	if cm == nil {
		return errors.New("mqtt publisher not started")
	}
	return cm.AwaitConnection(ctx)
}

func (p *Publisher) conn() *autopaho.ConnectionManager {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cm
}

func (p *Publisher) availabilityTopic() string { return p.cfg.TopicPrefix + "/availability" }
func (p *Publisher) statusTopic() string       { return p.cfg.TopicPrefix + "/status" }

// EventTopic returns the topic an event kind is forwarded to.
func (p *Publisher) EventTopic(kind string) string {
	return p.cfg.TopicPrefix + "/events/" + kind
}

// run forwards events and publishes status on every tick.
func (p *Publisher) run(ctx context.Context, ch <-chan events.Event, tick <-chan time.Time) {
	p.publishStatus(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			p.forward(ctx, e)
		case <-tick:
			p.publishStatus(ctx)
		}
	}
}

func (p *Publisher) forward(ctx context.Context, e events.Event) {
	switch e.Kind {
	case events.KindLLMResponse:
		p.tokens.AddTokens(intData(e.Data, "tokens_in"), intData(e.Data, "tokens_out"))
	case events.KindRequestComplete:
		p.tokens.AddTurn()
	}
	p.lastKind = e.Kind

	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("mqtt marshal event", "kind", e.Kind, "error", err)
		return
	}
	if _, err := p.pub.Publish(ctx, &paho.Publish{
		Topic:   p.EventTopic(e.Kind),
		Payload: payload,
		QoS:     0,
	}); err != nil {
		p.logger.Debug("mqtt event publish failed", "kind", e.Kind, "error", err)
	}
}

func (p *Publisher) publishStatus(ctx context.Context) {
	in, out, turns := p.tokens.Snapshot()
	payload, err := json.Marshal(Status{
		Version:       buildinfo.Version,
		Uptime:        buildinfo.Uptime().Truncate(time.Second).String(),
		TokensInput:   in,
		TokensOutput:  out,
		TurnsToday:    turns,
		LastEventKind: p.lastKind,
	})
	if err != nil {
		return
	}
	if _, err := p.pub.Publish(ctx, &paho.Publish{
		Topic:   p.statusTopic(),
		Payload: payload,
		QoS:     0,
		Retain:  true,
	}); err != nil {
		p.logger.Debug("mqtt status publish failed", "error", err)
	}
}

func (p *Publisher) publishAvailability(ctx context.Context, cm publisher, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}

// intData reads a numeric event field. Values arrive as int from
// in-process publishers.
func intData(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
