package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/concierge/internal/booking"
	"github.com/nugget/concierge/internal/plan"
)

// ContactSyncer pushes customer details to an external address book.
type ContactSyncer interface {
	PushCustomer(ctx context.Context, c booking.Customer) error
}

// BookingTools exposes the booking store to the reasoning engine.
type BookingTools struct {
	store   *booking.Store
	catalog *plan.Catalog
	sync    ContactSyncer
	logger  *slog.Logger
}

// NewBookingTools creates booking tool handlers. sync may be nil.
func NewBookingTools(store *booking.Store, catalog *plan.Catalog, sync ContactSyncer, logger *slog.Logger) *BookingTools {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingTools{store: store, catalog: catalog, sync: sync, logger: logger}
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func schema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

const (
	dateDesc = "Date as YYYY-MM-DD, or today/tomorrow"
	timeDesc = "Start time as HH:MM (24h)"
)

// Register adds the booking tools to r.
func (b *BookingTools) Register(r *Registry) {
	r.Register(&Tool{
		Name:        "listServices",
		Description: "List the services offered with duration and price.",
		Parameters:  schema(map[string]any{}),
		Handler:     b.handleListServices,
	})

	r.Register(&Tool{
		Name:        "checkAvailability",
		Description: "List free start times for a service on a date. Use before promising any time.",
		Parameters: schema(map[string]any{
			"service": stringProp("Service name"),
			"date":    stringProp(dateDesc),
		}, "service", "date"),
		Handler: b.handleCheckAvailability,
	})

	r.Register(&Tool{
		Name:        "createAppointment",
		Description: "Book a service for the current customer. Only call once the customer chose service, date and time.",
		Parameters: schema(map[string]any{
			"service":      stringProp("Service name"),
			"date":         stringProp(dateDesc),
			"time":         stringProp(timeDesc),
			"customerName": stringProp("Customer's name, if they gave it"),
		}, "service", "date", "time"),
		Handler: b.handleCreateAppointment,
	})

	r.Register(&Tool{
		Name:        "cancelAppointment",
		Description: "Cancel one of the current customer's appointments.",
		Parameters: schema(map[string]any{
			"appointmentId": stringProp("ID from listMyAppointments"),
		}, "appointmentId"),
		Handler: b.handleCancelAppointment,
	})

	r.Register(&Tool{
		Name:        "rescheduleAppointment",
		Description: "Move one of the current customer's appointments to a new date and time.",
		Parameters: schema(map[string]any{
			"appointmentId": stringProp("ID from listMyAppointments"),
			"date":          stringProp(dateDesc),
			"time":          stringProp(timeDesc),
		}, "appointmentId", "date", "time"),
		Handler: b.handleRescheduleAppointment,
	})

	r.Register(&Tool{
		Name:        "listMyAppointments",
		Description: "List the current customer's upcoming appointments with their IDs.",
		Parameters:  schema(map[string]any{}),
		Handler:     b.handleListMyAppointments,
	})

	r.Register(&Tool{
		Name:        "listAppointments",
		Description: "List every appointment booked on a date (staff only).",
		Parameters: schema(map[string]any{
			"date": stringProp(dateDesc),
		}, "date"),
		Privileged: true,
		Handler:    b.handleListAppointments,
	})

	r.Register(&Tool{
		Name:        "blockSlot",
		Description: "Mark a period unavailable for booking (staff only).",
		Parameters: schema(map[string]any{
			"date":             stringProp(dateDesc),
			"time":             stringProp(timeDesc),
			"duration_minutes": map[string]any{"type": "integer", "description": "Length of the block (default 30)"},
			"reason":           stringProp("Why the period is blocked"),
		}, "date", "time"),
		Privileged: true,
		Handler:    b.handleBlockSlot,
	})
}

func (b *BookingTools) handleListServices(ctx context.Context, _ map[string]any) (string, error) {
	services, err := b.store.Services(ctx)
	if err != nil {
		return "", err
	}
	return jsonResult(map[string]any{"services": services})
}

func (b *BookingTools) handleCheckAvailability(ctx context.Context, args map[string]any) (string, error) {
	svc, err := b.service(ctx, args)
	if err != nil {
		return "", err
	}
	day, err := plan.ResolveDate(argString(args, "date"), b.store.Now())
	if err != nil {
		return "", err
	}
	free, err := b.store.Available(ctx, svc, day)
	if err != nil {
		return "", err
	}
	return jsonResult(map[string]any{
		"service":   svc.Name,
		"date":      day.Format("2006-01-02"),
		"available": free,
	})
}

func (b *BookingTools) handleCreateAppointment(ctx context.Context, args map[string]any) (string, error) {
	caller := CallerFromContext(ctx)
	if caller.UserID == "" {
		return "", fmt.Errorf("no customer identity for this conversation")
	}
	svc, err := b.service(ctx, args)
	if err != nil {
		return "", err
	}
	start, err := b.startTime(args)
	if err != nil {
		return "", err
	}

	name := argString(args, "customerName")
	if name == "" {
		name = caller.Name
	}
	customer, err := b.store.UpsertCustomer(ctx, booking.Customer{ID: caller.UserID, Name: name})
	if err != nil {
		return "", err
	}

	appt, err := b.store.Book(ctx, customer.ID, svc.Name, start)
	if err != nil {
		return "", bookingError(err)
	}

	if b.sync != nil {
		if err := b.sync.PushCustomer(ctx, customer); err != nil {
			b.logger.Warn("contact sync failed", "customer", customer.ID, "error", err)
		}
	}

	return jsonResult(map[string]any{
		"status":        "booked",
		"appointmentId": appt.ID,
		"service":       appt.Service,
		"date":          appt.Start.Format("2006-01-02"),
		"time":          appt.Start.Format("15:04"),
	})
}

func (b *BookingTools) handleCancelAppointment(ctx context.Context, args map[string]any) (string, error) {
	id := argString(args, "appointmentId")
	if id == "" {
		return "", fmt.Errorf("appointmentId is required")
	}
	appt, err := b.store.Cancel(ctx, id, ownerScope(ctx))
	if err != nil {
		return "", bookingError(err)
	}
	return jsonResult(map[string]any{
		"status":        "cancelled",
		"appointmentId": appt.ID,
		"service":       appt.Service,
		"date":          appt.Start.Format("2006-01-02"),
		"time":          appt.Start.Format("15:04"),
	})
}

func (b *BookingTools) handleRescheduleAppointment(ctx context.Context, args map[string]any) (string, error) {
	id := argString(args, "appointmentId")
	if id == "" {
		return "", fmt.Errorf("appointmentId is required")
	}
	start, err := b.startTime(args)
	if err != nil {
		return "", err
	}
	appt, err := b.store.Reschedule(ctx, id, ownerScope(ctx), start)
	if err != nil {
		return "", bookingError(err)
	}
	return jsonResult(map[string]any{
		"status":        "rescheduled",
		"appointmentId": appt.ID,
		"service":       appt.Service,
		"date":          appt.Start.Format("2006-01-02"),
		"time":          appt.Start.Format("15:04"),
	})
}

func (b *BookingTools) handleListMyAppointments(ctx context.Context, _ map[string]any) (string, error) {
	caller := CallerFromContext(ctx)
	list, err := b.store.Upcoming(ctx, caller.UserID)
	if err != nil {
		return "", err
	}
	return jsonResult(map[string]any{"appointments": summarize(list)})
}

func (b *BookingTools) handleListAppointments(ctx context.Context, args map[string]any) (string, error) {
	day, err := plan.ResolveDate(argString(args, "date"), b.store.Now())
	if err != nil {
		return "", err
	}
	list, err := b.store.Day(ctx, day)
	if err != nil {
		return "", err
	}
	return jsonResult(map[string]any{
		"date":         day.Format("2006-01-02"),
		"appointments": summarize(list),
	})
}

func (b *BookingTools) handleBlockSlot(ctx context.Context, args map[string]any) (string, error) {
	start, err := b.startTime(args)
	if err != nil {
		return "", err
	}
	minutes := 30
	if v, ok := args["duration_minutes"].(float64); ok && v > 0 {
		minutes = int(v)
	}
	blk := booking.Block{Start: start, Duration: time.Duration(minutes) * time.Minute, Reason: argString(args, "reason")}
	if err := b.store.AddBlock(ctx, blk); err != nil {
		return "", err
	}
	return jsonResult(map[string]any{
		"status": "blocked",
		"from":   start.Format("2006-01-02 15:04"),
		"to":     start.Add(blk.Duration).Format("15:04"),
	})
}

// service resolves the "service" argument through the alias catalog
// before looking it up in the store.
func (b *BookingTools) service(ctx context.Context, args map[string]any) (booking.Service, error) {
	ref := argString(args, "service")
	if ref == "" {
		return booking.Service{}, fmt.Errorf("service is required")
	}
	if name, ok := b.catalog.Resolve(ref); ok {
		ref = name
	}
	svc, err := b.store.Service(ctx, ref)
	if errors.Is(err, booking.ErrNotFound) {
		return booking.Service{}, fmt.Errorf("unknown service %q; call listServices", ref)
	}
	return svc, err
}

func (b *BookingTools) startTime(args map[string]any) (time.Time, error) {
	day, err := plan.ResolveDate(argString(args, "date"), b.store.Now())
	if err != nil {
		return time.Time{}, err
	}
	hhmm, ok := plan.NormalizeTime(argString(args, "time"))
	if !ok {
		return time.Time{}, fmt.Errorf("unrecognized time %q (use HH:MM)", argString(args, "time"))
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", day.Format("2006-01-02")+" "+hhmm, day.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse start time: %w", err)
	}
	return t, nil
}

// ownerScope restricts customer callers to their own appointments.
// Privileged callers may act on any appointment.
func ownerScope(ctx context.Context) string {
	c := CallerFromContext(ctx)
	if c.Privileged {
		return ""
	}
	if c.UserID == "" {
		// An empty scope would grant access to everything.
		return "\x00"
	}
	return c.UserID
}

// bookingError maps store errors to messages the model can act on.
func bookingError(err error) error {
	switch {
	case errors.Is(err, booking.ErrSlotTaken):
		return fmt.Errorf("that time is already taken; call checkAvailability for free times")
	case errors.Is(err, booking.ErrOutsideHours):
		return fmt.Errorf("that time is in the past or outside opening hours")
	case errors.Is(err, booking.ErrNotFound):
		return fmt.Errorf("appointment not found; call listMyAppointments")
	}
	return err
}

type appointmentSummary struct {
	ID       string `json:"appointmentId"`
	Service  string `json:"service"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Customer string `json:"customer,omitempty"`
}

func summarize(list []booking.Appointment) []appointmentSummary {
	out := make([]appointmentSummary, 0, len(list))
	for _, a := range list {
		out = append(out, appointmentSummary{
			ID:       a.ID,
			Service:  a.Service,
			Date:     a.Start.Format("2006-01-02"),
			Time:     a.Start.Format("15:04"),
			Customer: a.CustomerName,
		})
	}
	return out
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func jsonResult(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}
