// Package session persists bounded per-customer conversation state.
//
// A session is keyed by (business, user), read once at the start of a
// turn, and overwritten at the end. The turn pipeline only ever holds a
// copy; stores never hand out shared pointers.
package session

import (
	"context"
	"net/url"
	"time"

	"github.com/nugget/concierge/internal/plan"
)

// Entry roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one message in the conversation history.
type Entry struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Session is the persisted conversation state for one customer.
type Session struct {
	Key       string        `json:"key"`
	History   []Entry       `json:"history"`
	Actions   []plan.Record `json:"actions"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Key returns the stable composite key for a business and end user.
// Both parts are escaped so a separator inside an ID cannot collide.
func Key(business, user string) string {
	return url.PathEscape(business) + ":" + url.PathEscape(user)
}

// New returns an empty session created at now.
func New(key string, now time.Time) *Session {
	return &Session{Key: key, CreatedAt: now, UpdatedAt: now}
}

// Clone returns a deep copy of the history and action slices.
func (s *Session) Clone() *Session {
	c := *s
	c.History = append([]Entry(nil), s.History...)
	c.Actions = append([]plan.Record(nil), s.Actions...)
	return &c
}

// Truncate keeps only the most recent history and action entries.
func (s *Session) Truncate(maxHistory, maxActions int) {
	s.History = Recent(s.History, maxHistory)
	s.Actions = recentRecords(s.Actions, maxActions)
}

// Recent returns the last n entries (all of them when n <= 0 or there
// are fewer than n).
func Recent(entries []Entry, n int) []Entry {
	if n <= 0 || len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

func recentRecords(records []plan.Record, n int) []plan.Record {
	if n <= 0 || len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}

// Store persists sessions with a time-to-live of inactivity.
type Store interface {
	// Get returns the session for key, or nil and no error when it does
	// not exist or has expired.
	Get(ctx context.Context, key string) (*Session, error)

	// Set overwrites the session for key. It expires ttl after this call.
	Set(ctx context.Context, key string, s *Session, ttl time.Duration) error
}
