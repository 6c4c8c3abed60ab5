// Package plan extracts the actions a customer message is believed to
// request and reconciles them against what the dispatcher executed.
//
// A plan is a hint, never a source of truth. Records are the ground
// truth of what ran during a turn.
package plan

import (
	"fmt"
	"time"
)

// Relative date tokens. Plans keep them unresolved; tools resolve them
// against the business clock at execution time.
const (
	DateToday    = "today"
	DateTomorrow = "tomorrow"
)

// Action is one planned action extracted from analysis text.
type Action struct {
	Service string `json:"service"`
	Time    string `json:"time"` // HH:MM
	Date    string `json:"date"` // today, tomorrow or YYYY-MM-DD
}

// String renders the action for model-facing instructions.
func (a Action) String() string {
	return fmt.Sprintf("%s at %s on %s", a.Service, a.Time, a.Date)
}

// Label renders the action for customer-facing text.
func (a Action) Label() string {
	return fmt.Sprintf("%s às %s", a.Service, a.Time)
}

// Record is one tool execution performed by the dispatcher.
type Record struct {
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args,omitempty"`
	Result  string         `json:"result"`
	Success bool           `json:"success"`
	At      time.Time      `json:"at"`
}

// Service returns the service argument of the call, if any.
func (r Record) Service() string { return r.stringArg("service") }

// Time returns the time argument of the call, if any.
func (r Record) Time() string { return r.stringArg("time") }

func (r Record) stringArg(key string) string {
	if r.Args == nil {
		return ""
	}
	s, _ := r.Args[key].(string)
	return s
}
