// Package agent runs one customer turn: it composes the prompt, plans,
// dispatches tool calls, validates and reviews the answer, replies
// exactly once and persists the session.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/concierge/internal/events"
	"github.com/nugget/concierge/internal/llm"
	"github.com/nugget/concierge/internal/plan"
	"github.com/nugget/concierge/internal/response"
	"github.com/nugget/concierge/internal/review"
	"github.com/nugget/concierge/internal/session"
	"github.com/nugget/concierge/internal/tools"
	"github.com/nugget/concierge/internal/usage"
)

// Inbound is one customer message.
type Inbound struct {
	BusinessID string
	UserID     string
	Name       string
	Text       string
	Privileged bool
}

// Replier delivers the final text to the customer.
type Replier interface {
	SendReply(ctx context.Context, businessID, userID, text string) error
}

// Reply describes a completed turn.
type Reply struct {
	RequestID  string
	SessionKey string
	Answer     response.Answer
	Records    []plan.Record
	Pending    []plan.Action
	Iterations int
}

// Config tunes the turn pipeline.
type Config struct {
	ChatModel       string
	FormatModel     string
	ChatTemperature float64
	MaxIterations   int
	PromptHistory   int
	SessionHistory  int
	ActionLog       int
	SessionTTL      time.Duration
	ReconcileTools  []string
	BookingTools    []string
	Review          bool
	Persona         Persona
}

// Deps are the collaborators a Coordinator needs. Usage and Bus may be
// nil.
type Deps struct {
	LLM      llm.Client
	Registry *tools.Registry
	Catalog  *plan.Catalog
	Sessions session.Store
	Replier  Replier
	Usage    UsageRecorder
	Bus      *events.Bus
	Logger   *slog.Logger
}

// Coordinator composes the pipeline stages into one request→reply
// transaction.
type Coordinator struct {
	cfg        Config
	composer   *Composer
	planner    *Planner
	dispatcher *Dispatcher
	reconciler *plan.Reconciler
	invoker    *Invoker
	sanitizer  *response.Sanitizer
	sessions   session.Store
	replier    Replier
	bus        *events.Bus
	logger     *slog.Logger
	now        func() time.Time
}

// New wires a Coordinator.
func New(cfg Config, deps Deps) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.BookingTools) == 0 {
		cfg.BookingTools = []string{"createAppointment"}
	}

	inv := NewInvoker(deps.LLM, deps.Usage, deps.Bus, logger.With("component", "invoker"))
	extractor := plan.NewHeuristicExtractor(deps.Catalog, logger.With("component", "extractor"))
	reconciler := plan.NewReconciler(deps.Catalog, cfg.ReconcileTools)

	return &Coordinator{
		cfg:        cfg,
		composer:   NewComposer(cfg.Persona, cfg.PromptHistory),
		planner:    NewPlanner(inv, extractor, extractor, deps.Catalog.Names(), cfg.FormatModel, deps.Bus, logger),
		dispatcher: NewDispatcher(inv, deps.Registry, reconciler, cfg.ChatModel, cfg.ChatTemperature, cfg.MaxIterations, deps.Bus, logger),
		reconciler: reconciler,
		invoker:    inv,
		sanitizer:  response.NewSanitizer(deps.Registry.Names(true)),
		sessions:   deps.Sessions,
		replier:    deps.Replier,
		bus:        deps.Bus,
		logger:     logger.With("component", "coordinator"),
		now:        time.Now,
	}
}

// HandleMessage runs one turn. Exactly one reply is attempted whatever
// happens inside the pipeline. The returned error reports only a failed
// delivery or a failed session save; the Reply is valid either way.
func (c *Coordinator) HandleMessage(ctx context.Context, in Inbound) (*Reply, error) {
	start := c.now()
	meta := Meta{
		RequestID:  uuid.Must(uuid.NewV7()).String(),
		SessionKey: session.Key(in.BusinessID, in.UserID),
	}
	ctx = tools.WithCaller(ctx, tools.Caller{
		BusinessID: in.BusinessID,
		UserID:     in.UserID,
		Name:       in.Name,
		Privileged: in.Privileged,
		RequestID:  meta.RequestID,
	})
	log := c.logger.With("request_id", meta.RequestID, "session", meta.SessionKey)

	log.Info("turn started", "privileged", in.Privileged, "chars", len(in.Text))
	c.bus.Emit(events.SourceAgent, events.KindRequestStart, map[string]any{
		"request_id": meta.RequestID,
		"session":    meta.SessionKey,
		"privileged": in.Privileged,
	})

	sess := c.loadSession(ctx, log, meta.SessionKey, start)

	bundle := c.composer.Compose(sess.History, start)
	analysis, planned := c.planner.Plan(ctx, meta, in.Text)

	tc := NewTurnContext(bundle, in.Text)
	tc.Analysis = analysis
	out := c.dispatcher.Run(ctx, meta, tc, planned)

	answer := c.finalize(ctx, log, meta, sess.History, planned, out)

	reply := &Reply{
		RequestID:  meta.RequestID,
		SessionKey: meta.SessionKey,
		Answer:     answer,
		Records:    out.Records,
		Pending:    out.Pending,
		Iterations: out.Iterations,
	}

	var errs []error
	if err := c.replier.SendReply(ctx, in.BusinessID, in.UserID, answer.Text); err != nil {
		log.Error("reply delivery failed", "error", err)
		errs = append(errs, fmt.Errorf("send reply: %w", err))
	}

	now := c.now()
	sess.History = append(sess.History,
		session.Entry{Role: session.RoleUser, Content: in.Text, Timestamp: start},
		session.Entry{Role: session.RoleAssistant, Content: answer.Text, Timestamp: now, Metadata: answer.Metadata.Map()},
	)
	sess.Actions = append(sess.Actions, out.Records...)
	sess.UpdatedAt = now
	sess.Truncate(c.cfg.SessionHistory, c.cfg.ActionLog)
	if err := c.sessions.Set(ctx, meta.SessionKey, sess, c.cfg.SessionTTL); err != nil {
		log.Error("session save failed", "error", err)
		errs = append(errs, fmt.Errorf("save session: %w", err))
	}

	elapsed := c.now().Sub(start)
	log.Info("turn complete",
		"iterations", out.Iterations,
		"tools", len(out.Records),
		"pending", len(out.Pending),
		"intent", answer.Metadata.Intent,
		"elapsed", elapsed.Round(time.Millisecond),
	)
	c.bus.Emit(events.SourceAgent, events.KindRequestComplete, map[string]any{
		"request_id": meta.RequestID,
		"session":    meta.SessionKey,
		"iterations": out.Iterations,
		"tools":      len(out.Records),
		"pending":    len(out.Pending),
		"elapsed_ms": elapsed.Milliseconds(),
	})

	return reply, errors.Join(errs...)
}

// loadSession reads the stored session. A read failure starts a fresh
// one; the turn must still be answered.
func (c *Coordinator) loadSession(ctx context.Context, log *slog.Logger, key string, now time.Time) *session.Session {
	sess, err := c.sessions.Get(ctx, key)
	if err != nil {
		log.Warn("session load failed, starting fresh", "error", err)
	}
	if sess == nil {
		return session.New(key, now)
	}
	return sess
}

// finalize turns the dispatch outcome into the answer that is sent.
func (c *Coordinator) finalize(ctx context.Context, log *slog.Logger, meta Meta,
	history []session.Entry, planned []plan.Action, out Outcome) response.Answer {

	contact := c.cfg.Persona.ContactChannel
	validator := response.NewValidator(&repairer{inv: c.invoker, meta: meta, model: c.cfg.FormatModel},
		c.sanitizer, contact, log)

	var answer response.Answer
	if out.Failed {
		log.Warn("reasoning engine unavailable, sending apology")
		answer = validator.Apology()
	} else {
		var how response.Outcome
		answer, how = validator.Validate(ctx, out.Draft)
		log.Debug("draft validated", "outcome", how.String())
	}

	succeeded, rest := c.reconciler.Split(planned, out.Records)
	answer, rewritten := response.RewritePending(answer, out.Pending, succeeded, rest)
	if rewritten {
		log.Info("reply rewritten for unexecuted actions",
			"pending", len(out.Pending),
			"succeeded", len(succeeded),
		)
	}
	answer = response.GroundBookedSlots(answer, out.Records, c.cfg.BookingTools...)

	if !c.cfg.Review || out.Failed || rewritten {
		return answer
	}

	reviewer := review.NewReviewer(c.invoker.Bound(meta, usage.PurposeReview), c.cfg.FormatModel,
		c.cfg.Persona.Persona, contact, log)
	verdict, err := reviewer.Review(ctx, answer.Text, session.Recent(history, c.cfg.PromptHistory), out.Records)
	if err != nil {
		log.Warn("review failed, sending unreviewed draft", "error", err)
		return answer
	}
	c.bus.Emit(events.SourceAgent, events.KindReview, map[string]any{
		"request_id": meta.RequestID,
		"approved":   verdict.Kind == review.Approved,
		"fallback":   verdict.Kind == review.Rejected,
	})

	switch verdict.Kind {
	case review.Corrected:
		if text := c.sanitizer.Clean(verdict.Text); text != "" {
			answer.Text = text
		}
	case review.Rejected:
		answer.Text = verdict.Text
	}
	return answer
}
