package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql

	"github.com/nugget/concierge/internal/agent"
	"github.com/nugget/concierge/internal/booking"
	"github.com/nugget/concierge/internal/config"
	"github.com/nugget/concierge/internal/connwatch"
	"github.com/nugget/concierge/internal/contactsync"
	"github.com/nugget/concierge/internal/events"
	"github.com/nugget/concierge/internal/llm"
	"github.com/nugget/concierge/internal/mqtt"
	"github.com/nugget/concierge/internal/plan"
	"github.com/nugget/concierge/internal/prompts"
	"github.com/nugget/concierge/internal/replier"
	"github.com/nugget/concierge/internal/session"
	"github.com/nugget/concierge/internal/tools"
	"github.com/nugget/concierge/internal/usage"
)

// app holds the wired service. It is shared by serve and ask.
type app struct {
	db          *sql.DB
	bookings    *booking.Store
	sessions    *session.SQLiteStore
	usage       *usage.Store
	hub         *replier.Hub
	coordinator *agent.Coordinator
	sweeper     *session.Sweeper
	mqtt        *mqtt.Publisher
	mqttDone    chan struct{}
	ollama      *llm.OllamaClient
	health      *connwatch.Manager
	logger      *slog.Logger
}

// newApp opens the stores and wires the turn pipeline. A non-nil
// override replaces the configured reply channels.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, override agent.Replier) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "concierge.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}

	a := &app{db: db, logger: logger}
	if err := a.wire(ctx, cfg, override); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, cfg *config.Config, override agent.Replier) error {
	logger := a.logger
	biz := cfg.Business
	loc := biz.Location()

	bookings, err := booking.NewStore(a.db, booking.Hours{
		Open:     biz.OpenHour,
		Close:    biz.CloseHour,
		Slot:     time.Duration(biz.SlotMinutes) * time.Minute,
		Location: loc,
	})
	if err != nil {
		return fmt.Errorf("open booking store: %w", err)
	}
	var services []booking.Service
	var catalogEntries []plan.Service
	var serviceLines []prompts.ServiceLine
	for _, s := range biz.Services {
		services = append(services, booking.Service{Name: s.Name, DurationMinutes: s.DurationMinutes, Price: s.Price})
		catalogEntries = append(catalogEntries, plan.Service{Name: s.Name, Aliases: s.Aliases})
		serviceLines = append(serviceLines, prompts.ServiceLine{Name: s.Name, DurationMinutes: s.DurationMinutes, Price: s.Price})
	}
	if err := bookings.SyncServices(ctx, services); err != nil {
		return fmt.Errorf("sync services: %w", err)
	}
	a.bookings = bookings

	if a.sessions, err = session.NewSQLiteStore(a.db); err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	if a.usage, err = usage.NewStore(a.db); err != nil {
		return fmt.Errorf("open usage store: %w", err)
	}

	catalog := plan.NewCatalog(catalogEntries)
	registry := tools.NewRegistry(logger)

	var syncer tools.ContactSyncer
	if cfg.CardDAV.Configured() {
		cd, err := contactsync.New(contactsync.Config{
			URL:      cfg.CardDAV.URL,
			Username: cfg.CardDAV.Username,
			Password: cfg.CardDAV.Password,
		}, biz.Name, logger)
		if err != nil {
			return fmt.Errorf("carddav: %w", err)
		}
		syncer = cd
		logger.Info("carddav contact sync enabled", "url", cfg.CardDAV.URL)
	}
	tools.NewBookingTools(bookings, catalog, syncer, logger.With("component", "booking_tools")).Register(registry)
	tools.RegisterUsageTools(registry, a.usage, loc)

	out := override
	if out == nil {
		multi, hub, err := buildRepliers(cfg, logger)
		if err != nil {
			return err
		}
		a.hub = hub
		out = multi
	}

	bus := events.New()
	a.health = connwatch.NewManager(func(st connwatch.Status) {
		bus.Emit(events.SourceConnwatch, events.KindServiceStatus, map[string]any{
			"service": st.Name,
			"ready":   st.Ready,
			"error":   st.LastError,
		})
	}, logger)
	a.ollama = llm.NewOllamaClient(cfg.Models.OllamaURL, logger)
	client, err := createLLMClient(cfg, logger, a.ollama)
	if err != nil {
		return err
	}

	a.coordinator = agent.New(agent.Config{
		ChatModel:       cfg.Models.Chat,
		FormatModel:     cfg.Models.Format,
		ChatTemperature: cfg.Models.ChatTemperature,
		MaxIterations:   cfg.Agent.MaxIterations,
		PromptHistory:   cfg.Agent.PromptHistory,
		SessionHistory:  cfg.Agent.SessionHistory,
		ActionLog:       cfg.Agent.ActionLog,
		SessionTTL:      cfg.Agent.SessionTTL,
		ReconcileTools:  cfg.Agent.ReconcileTools,
		Review:          cfg.Agent.ReviewEnabled(),
		Persona: agent.Persona{
			BusinessName:   biz.Name,
			Persona:        biz.Persona,
			ContactChannel: biz.ContactChannel,
			OpenHour:       biz.OpenHour,
			CloseHour:      biz.CloseHour,
			Services:       serviceLines,
			Location:       loc,
		},
	}, agent.Deps{
		LLM:      client,
		Registry: registry,
		Catalog:  catalog,
		Sessions: a.sessions,
		Replier:  out,
		Usage:    a.usage,
		Bus:      bus,
		Logger:   logger,
	})

	if a.sweeper, err = session.NewSweeper(a.sessions, cfg.Agent.SweepSchedule, logger); err != nil {
		return err
	}

	if cfg.MQTT.Configured() {
		id, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("mqtt instance id: %w", err)
		}
		a.mqtt = mqtt.New(cfg.MQTT, id, bus, mqtt.NewDailyTokens(loc), logger)
		logger.Info("mqtt event export enabled", "broker", cfg.MQTT.Broker, "prefix", cfg.MQTT.TopicPrefix)
	}
	return nil
}

// buildRepliers assembles the configured reply channels. The log
// channel is always added when nothing else is configured so replies
// are never silently dropped.
func buildRepliers(cfg *config.Config, logger *slog.Logger) (*replier.Multi, *replier.Hub, error) {
	rc := cfg.Replies
	multi := replier.NewMulti(logger)
	var hub *replier.Hub

	if rc.WebhookURL != "" {
		multi.Add("webhook", replier.NewWebhook(rc.WebhookURL, logger))
	}
	if rc.WebSocket {
		hub = replier.NewHub(logger)
		multi.Add("websocket", hub)
	}
	if rc.Email.Configured() {
		multi.Add("email", replier.NewEmail(replier.EmailConfig{
			Host:     rc.Email.Host,
			Port:     rc.Email.Port,
			Username: rc.Email.Username,
			Password: rc.Email.Password,
			From:     rc.Email.From,
			Subject:  rc.Email.Subject,
		}, logger))
	}
	if rc.Slack.Token != "" {
		multi.Add("slack", replier.NewSlack(rc.Slack.Token, logger))
	}
	if rc.Discord.Token != "" {
		d, err := replier.NewDiscord(rc.Discord.Token, logger)
		if err != nil {
			return nil, nil, err
		}
		multi.Add("discord", d)
	}
	if rc.Log || multi.Len() == 0 {
		multi.Add("log", replier.NewLog(logger))
	}

	logger.Info("reply channels configured", "count", multi.Len())
	return multi, hub, nil
}

// createLLMClient builds a multi-provider client. Models not mapped in
// config fall through to Ollama. The Ollama client is created by the
// caller so it can also be health-watched.
func createLLMClient(cfg *config.Config, logger *slog.Logger, ollama *llm.OllamaClient) (llm.Client, error) {
	multi := llm.NewMultiClient("ollama")
	multi.AddProvider("ollama", ollama)

	if cfg.Anthropic.Configured() {
		multi.AddProvider("anthropic", llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger))
		logger.Info("Anthropic provider configured")
	}
	for _, m := range cfg.Models.Available {
		if err := multi.AddModel(m.Name, m.Provider); err != nil {
			return nil, fmt.Errorf("models.available: %w", err)
		}
	}
	for _, model := range []string{cfg.Models.Chat, cfg.Models.Format} {
		logger.Debug("model route", "model", model, "provider", multi.Provider(model))
	}
	return multi, nil
}

// StartBackground starts the background workers.
func (a *app) StartBackground(ctx context.Context) {
	a.sweeper.Start()
	a.health.Watch(ctx, "ollama", a.ollama.Ping, connwatch.DefaultBackoff())
	if a.mqtt == nil {
		return
	}
	a.health.Watch(ctx, "mqtt", func(pctx context.Context) error {
		awaitCtx, cancel := context.WithTimeout(pctx, 2*time.Second)
		defer cancel()
		return a.mqtt.AwaitConnection(awaitCtx)
	}, connwatch.DefaultBackoff())
	a.mqttDone = make(chan struct{})
	go func() {
		defer close(a.mqttDone)
		if err := a.mqtt.Start(ctx); err != nil {
			a.logger.Error("mqtt publisher failed", "error", err)
		}
	}()
}

// StopBackground stops what StartBackground started. ctx bounds the
// wait.
func (a *app) StopBackground(ctx context.Context) {
	a.sweeper.Stop(ctx)
	a.health.Stop()
	if a.mqtt == nil || a.mqttDone == nil {
		return
	}
	select {
	case <-a.mqttDone:
	case <-ctx.Done():
		return
	}
	if err := a.mqtt.Stop(ctx); err != nil {
		a.logger.Error("mqtt shutdown failed", "error", err)
	}
}

// Close releases the database.
func (a *app) Close() error {
	return a.db.Close()
}
