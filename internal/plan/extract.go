package plan

import (
	"log/slog"
	"strings"
)

// Extractor turns analysis text into planned actions. Implementations
// never fail: an unusable analysis yields an empty plan.
type Extractor interface {
	Extract(analysis string) []Action
}

// HeuristicExtractor pattern-matches service names, times of day and
// date tokens. The i-th service mention is paired with the i-th time
// mention; all actions share the single detected date, or tomorrow when
// zero or several distinct dates appear.
type HeuristicExtractor struct {
	catalog *Catalog
	logger  *slog.Logger
}

// NewHeuristicExtractor creates an extractor over the given catalog.
func NewHeuristicExtractor(catalog *Catalog, logger *slog.Logger) *HeuristicExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HeuristicExtractor{catalog: catalog, logger: logger}
}

// Plausible reports whether a customer message could request an action:
// it mentions a known service or a time of day. Messages that fail this
// check skip the analysis call entirely.
func (e *HeuristicExtractor) Plausible(message string) bool {
	lower := strings.ToLower(message)
	return len(e.catalog.find(lower)) > 0 || timePattern.MatchString(lower)
}

// Extract implements Extractor.
func (e *HeuristicExtractor) Extract(analysis string) (actions []Action) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("plan extraction failed, continuing without plan", "panic", r)
			actions = nil
		}
	}()

	lower := strings.ToLower(analysis)
	services := e.catalog.find(lower)
	times := timePattern.FindAllStringSubmatch(lower, -1)

	date := DateTomorrow
	seen := make(map[string]bool)
	for _, tok := range datePattern.FindAllString(lower, -1) {
		seen[normalizeDate(tok)] = true
	}
	if len(seen) == 1 {
		for d := range seen {
			date = d
		}
	}

	n := min(len(services), len(times))
	dup := make(map[Action]bool)
	for i := 0; i < n; i++ {
		a := Action{Service: services[i].service, Time: clock(times[i]), Date: date}
		if dup[a] {
			continue
		}
		dup[a] = true
		actions = append(actions, a)
	}

	e.logger.Debug("plan extracted",
		"services", len(services),
		"times", len(times),
		"date", date,
		"actions", len(actions),
	)
	return actions
}
