// Package connwatch tracks the reachability of the external services a
// turn depends on: the reasoning-engine provider and, when configured,
// the MQTT broker.
//
// A Watcher probes one service. While the service is down it retries
// with exponential backoff; once it is up it polls at a fixed interval.
// Every up/down transition is logged and reported through OnChange, and
// the latest state is exposed for the /health endpoint.
package connwatch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ProbeFunc checks whether a service is reachable. Return nil if healthy.
type ProbeFunc func(ctx context.Context) error

// Backoff controls probe timing.
type Backoff struct {
	InitialDelay time.Duration // first retry after a failure (default 2s)
	MaxDelay     time.Duration // retry ceiling (default 60s)
	PollInterval time.Duration // interval while healthy (default 60s)
	ProbeTimeout time.Duration // per-probe limit (default 10s)
}

// DefaultBackoff returns 2s doubling to 60s, with 60s polling.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		PollInterval: 60 * time.Second,
		ProbeTimeout: 10 * time.Second,
	}
}

func (b Backoff) withDefaults() Backoff {
	d := DefaultBackoff()
	if b.InitialDelay <= 0 {
		b.InitialDelay = d.InitialDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = d.MaxDelay
	}
	if b.PollInterval <= 0 {
		b.PollInterval = d.PollInterval
	}
	if b.ProbeTimeout <= 0 {
		b.ProbeTimeout = d.ProbeTimeout
	}
	return b
}

// Status is the health of one watched service.
type Status struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// Watcher monitors a single service.
type Watcher struct {
	name     string
	probe    ProbeFunc
	backoff  Backoff
	onChange func(Status)
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status Status
}

// Status returns the latest probe outcome.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Stop cancels the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	delay := w.backoff.InitialDelay
	for {
		ready := w.check(ctx)

		wait := w.backoff.PollInterval
		if !ready {
			wait = delay
			delay = min(delay*2, w.backoff.MaxDelay)
		} else {
			delay = w.backoff.InitialDelay
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// check probes once, records the result and reports transitions. The
// first probe always counts as a transition so OnChange learns the
// initial state.
func (w *Watcher) check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, w.backoff.ProbeTimeout)
	err := w.probe(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return false
	}

	w.mu.Lock()
	first := w.status.LastCheck.IsZero()
	changed := first || w.status.Ready != (err == nil)
	w.status.Ready = err == nil
	w.status.LastCheck = time.Now()
	w.status.LastError = ""
	if err != nil {
		w.status.LastError = err.Error()
	}
	st := w.status
	w.mu.Unlock()

	if changed {
		if st.Ready {
			w.logger.Info("service reachable", "service", w.name)
		} else {
			w.logger.Warn("service unreachable", "service", w.name, "error", err)
		}
		if w.onChange != nil {
			w.onChange(st)
		}
	} else if err != nil {
		w.logger.Debug("service still unreachable", "service", w.name, "error", err)
	}
	return st.Ready
}

// Manager owns a set of watchers.
type Manager struct {
	mu       sync.RWMutex
	watchers map[string]*Watcher
	onChange func(Status)
	logger   *slog.Logger
}

// NewManager creates a manager. onChange, if non-nil, is called
// synchronously from the watcher goroutine on every transition.
func NewManager(onChange func(Status), logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		watchers: make(map[string]*Watcher),
		onChange: onChange,
		logger:   logger.With("component", "connwatch"),
	}
}

// Watch starts probing a service in the background until ctx is
// cancelled or Stop is called. Zero Backoff fields take defaults.
// Watching an existing name replaces the old watcher.
func (m *Manager) Watch(ctx context.Context, name string, probe ProbeFunc, b Backoff) *Watcher {
	watchCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		name:     name,
		probe:    probe,
		backoff:  b.withDefaults(),
		onChange: m.onChange,
		logger:   m.logger,
		cancel:   cancel,
		done:     make(chan struct{}),
		status:   Status{Name: name},
	}

	m.mu.Lock()
	old := m.watchers[name]
	m.watchers[name] = w
	m.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	go w.run(watchCtx)
	return w
}

// Status returns every watcher's status sorted by name.
func (m *Manager) Status() []Status {
	m.mu.RLock()
	out := make([]Status, 0, len(m.watchers))
	for _, w := range m.watchers {
		out = append(out, w.Status())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Healthy reports whether every watched service is ready.
func (m *Manager) Healthy() bool {
	for _, s := range m.Status() {
		if !s.Ready {
			return false
		}
	}
	return true
}

// Stop shuts down all watchers and waits for them to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	watchers := m.watchers
	m.watchers = make(map[string]*Watcher)
	m.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
}
