package mqtt

import (
	"sync"
	"time"
)

// DailyTokens tracks token usage and completed turns, resetting at
// local midnight. It is safe for concurrent use.
type DailyTokens struct {
	mu       sync.Mutex
	input    int64
	output   int64
	turns    int64
	resetDay int // day-of-year of last reset
	loc      *time.Location
	now      func() time.Time
}

// NewDailyTokens creates an accumulator using loc for midnight
// detection. A nil loc means [time.Local].
func NewDailyTokens(loc *time.Location) *DailyTokens {
	if loc == nil {
		loc = time.Local
	}
	d := &DailyTokens{loc: loc, now: time.Now}
	d.resetDay = d.now().In(loc).YearDay()
	return d
}

// AddTokens records one reasoning call.
func (d *DailyTokens) AddTokens(input, output int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maybeReset()
	d.input += int64(input)
	d.output += int64(output)
}

// AddTurn records one completed customer turn.
func (d *DailyTokens) AddTurn() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maybeReset()
	d.turns++
}

// Snapshot returns today's totals.
func (d *DailyTokens) Snapshot() (input, output, turns int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maybeReset()
	return d.input, d.output, d.turns
}

// maybeReset must be called with d.mu held.
func (d *DailyTokens) maybeReset() {
	if today := d.now().In(d.loc).YearDay(); today != d.resetDay {
		d.input, d.output, d.turns = 0, 0, 0
		d.resetDay = today
	}
}
