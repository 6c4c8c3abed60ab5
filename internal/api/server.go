// Package api implements the HTTP surface: the inbound message
// endpoint, the websocket reply stream and a few admin endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nugget/concierge/internal/agent"
	"github.com/nugget/concierge/internal/booking"
	"github.com/nugget/concierge/internal/buildinfo"
	"github.com/nugget/concierge/internal/connwatch"
	"github.com/nugget/concierge/internal/replier"
	"github.com/nugget/concierge/internal/session"
	"github.com/nugget/concierge/internal/usage"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Turns runs customer turns.
type Turns interface {
	HandleMessage(ctx context.Context, in agent.Inbound) (*agent.Reply, error)
}

// SessionReader loads stored sessions.
type SessionReader interface {
	Get(ctx context.Context, key string) (*session.Session, error)
}

// AppointmentReader looks up a single appointment.
type AppointmentReader interface {
	Get(ctx context.Context, id string) (booking.Appointment, error)
}

// UsageReader summarizes the usage ledger.
type UsageReader interface {
	Summary(ctx context.Context, start, end time.Time) (*usage.Summary, error)
	SummaryByPurpose(ctx context.Context, start, end time.Time) (map[string]*usage.Summary, error)
	SummaryByModel(ctx context.Context, start, end time.Time) (map[string]*usage.Summary, error)
}

// HealthReporter exposes dependency reachability.
type HealthReporter interface {
	Status() []connwatch.Status
	Healthy() bool
}

// Options configures a Server.
type Options struct {
	Address    string
	Port       int
	BusinessID string
	// TokenHashes are bcrypt hashes of admin bearer tokens.
	TokenHashes []string
}

// Deps are the collaborators the handlers use. Hub, Sessions,
// Appointments and Usage may be nil; their endpoints then answer 404.
type Deps struct {
	Turns        Turns
	Hub          *replier.Hub
	Sessions     SessionReader
	Appointments AppointmentReader
	Usage        UsageReader
	Health       HealthReporter
}

// Server is the HTTP API server.
type Server struct {
	opts   Options
	deps   Deps
	auth   *tokenAuth
	logger *slog.Logger
	server *http.Server
}

// NewServer creates a new API server.
func NewServer(opts Options, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		opts:   opts,
		deps:   deps,
		auth:   newTokenAuth(opts.TokenHashes),
		logger: logger.With("component", "api"),
	}
}

// Handler returns the routed handler with request logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/messages", s.handleMessage)
	mux.HandleFunc("GET /v1/ws", s.handleWebSocket)

	mux.HandleFunc("GET /v1/sessions/{user}", s.requirePrivileged(s.handleSession))
	mux.HandleFunc("GET /v1/usage", s.requirePrivileged(s.handleUsage))
	mux.HandleFunc("GET /v1/appointments/{id}/qr", s.handleAppointmentQR)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.opts.Address, s.opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// A turn may take several reasoning calls.
		WriteTimeout: 5 * time.Minute,
	}

	addr := s.opts.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.opts.Port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

func (s *Server) businessID(r *http.Request) string {
	if b := r.URL.Query().Get("business_id"); b != "" {
		return b
	}
	return s.opts.BusinessID
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{
		"name":    "Concierge",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, buildinfo.Current(), s.logger)
}

// handleHealth answers 200 even when a dependency is down: turns still
// complete with the apology text, so the process should stay in rotation.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "healthy"}
	if s.deps.Health != nil {
		if !s.deps.Health.Healthy() {
			body["status"] = "degraded"
		}
		body["services"] = s.deps.Health.Status()
	}
	writeJSON(w, body, s.logger)
}
