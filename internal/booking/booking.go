// Package booking is the appointment record store: services, customers,
// appointments and blocked time. It owns the scheduling rules (opening
// hours, slot granularity, conflict detection) that the booking tools
// expose to the reasoning engine.
package booking

import (
	"errors"
	"time"
)

// Appointment statuses.
const (
	StatusBooked    = "booked"
	StatusCancelled = "cancelled"
)

var (
	// ErrNotFound is returned when an appointment, service or customer
	// does not exist (or belongs to another customer).
	ErrNotFound = errors.New("not found")

	// ErrSlotTaken is returned when the requested time overlaps an
	// existing appointment or blocked period.
	ErrSlotTaken = errors.New("time slot already taken")

	// ErrOutsideHours is returned when the requested time is in the past
	// or outside opening hours.
	ErrOutsideHours = errors.New("outside opening hours")
)

// Service is a bookable service.
type Service struct {
	Name            string  `json:"name"`
	DurationMinutes int     `json:"duration_minutes"`
	Price           float64 `json:"price,omitempty"`
}

// Duration returns the service length.
func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Customer is an end user who has booked at least once.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Appointment is one booked (or cancelled) service.
type Appointment struct {
	ID           string        `json:"id"`
	CustomerID   string        `json:"customer_id"`
	CustomerName string        `json:"customer_name,omitempty"`
	Service      string        `json:"service"`
	Start        time.Time     `json:"start"`
	Duration     time.Duration `json:"-"`
	Status       string        `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}

// End returns when the appointment finishes.
func (a Appointment) End() time.Time { return a.Start.Add(a.Duration) }

// Block is a period an operator marked unavailable.
type Block struct {
	Start    time.Time
	Duration time.Duration
	Reason   string
}

// Hours describes when appointments may start.
type Hours struct {
	Open     int // hour of day, inclusive
	Close    int // hour of day, exclusive end of last appointment
	Slot     time.Duration
	Location *time.Location
}

func (h Hours) window(day time.Time) (time.Time, time.Time) {
	d := day.In(h.Location)
	opens := time.Date(d.Year(), d.Month(), d.Day(), h.Open, 0, 0, 0, h.Location)
	closes := time.Date(d.Year(), d.Month(), d.Day(), h.Close, 0, 0, 0, h.Location)
	return opens, closes
}
