package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store persists booking records in SQLite. Conflict checks and inserts
// run in one transaction so two concurrent bookings cannot both take a
// slot.
type Store struct {
	db    *sql.DB
	hours Hours
	now   func() time.Time
}

// NewStore creates a booking store on db, running migrations on first use.
func NewStore(db *sql.DB, hours Hours) (*Store, error) {
	if hours.Location == nil {
		hours.Location = time.Local
	}
	if hours.Slot <= 0 {
		hours.Slot = 30 * time.Minute
	}
	s := &Store{db: db, hours: hours, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate booking: %w", err)
	}
	return s, nil
}

// Location returns the business time zone.
func (s *Store) Location() *time.Location { return s.hours.Location }

// Now returns the current time in the business time zone.
func (s *Store) Now() time.Time { return s.now().In(s.hours.Location) }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS services (
			name             TEXT PRIMARY KEY,
			duration_minutes INTEGER NOT NULL,
			price            REAL NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS customers (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS appointments (
			id          TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			service     TEXT NOT NULL,
			start_at    INTEGER NOT NULL,
			end_at      INTEGER NOT NULL,
			status      TEXT NOT NULL,
			created_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_appointments_start ON appointments(start_at);
		CREATE INDEX IF NOT EXISTS idx_appointments_customer ON appointments(customer_id);
		CREATE TABLE IF NOT EXISTS blocks (
			start_at INTEGER NOT NULL,
			end_at   INTEGER NOT NULL,
			reason   TEXT NOT NULL DEFAULT ''
		);
	`)
	return err
}

// SyncServices upserts the configured service list.
func (s *Store) SyncServices(ctx context.Context, services []Service) error {
	for _, svc := range services {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO services (name, duration_minutes, price) VALUES (?, ?, ?)
			 ON CONFLICT (name) DO UPDATE
			 SET duration_minutes = excluded.duration_minutes, price = excluded.price`,
			svc.Name, svc.DurationMinutes, svc.Price,
		)
		if err != nil {
			return fmt.Errorf("sync service %s: %w", svc.Name, err)
		}
	}
	return nil
}

// Services lists all services by name.
func (s *Store) Services(ctx context.Context) ([]Service, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, duration_minutes, price FROM services ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.Name, &svc.DurationMinutes, &svc.Price); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// Service looks up a service by exact name (case-insensitive).
func (s *Store) Service(ctx context.Context, name string) (Service, error) {
	var svc Service
	err := s.db.QueryRowContext(ctx,
		`SELECT name, duration_minutes, price FROM services WHERE name = ? COLLATE NOCASE`,
		strings.TrimSpace(name),
	).Scan(&svc.Name, &svc.DurationMinutes, &svc.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return Service{}, fmt.Errorf("service %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Service{}, fmt.Errorf("get service %q: %w", name, err)
	}
	return svc, nil
}

// UpsertCustomer records a customer. A non-empty name replaces the
// stored one.
func (s *Store) UpsertCustomer(ctx context.Context, c Customer) (Customer, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (id, name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE
		 SET name = CASE WHEN excluded.name != '' THEN excluded.name ELSE customers.name END`,
		c.ID, c.Name, s.now().Unix(),
	)
	if err != nil {
		return Customer{}, fmt.Errorf("upsert customer %s: %w", c.ID, err)
	}
	return s.Customer(ctx, c.ID)
}

// Customer returns a customer by ID.
func (s *Store) Customer(ctx context.Context, id string) (Customer, error) {
	var c Customer
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM customers WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Customer{}, fmt.Errorf("customer %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Customer{}, fmt.Errorf("get customer %s: %w", id, err)
	}
	c.CreatedAt = time.Unix(created, 0).In(s.hours.Location)
	return c, nil
}

// Available returns the free start times (HH:MM) for svc on day.
func (s *Store) Available(ctx context.Context, svc Service, day time.Time) ([]string, error) {
	opens, closes := s.hours.window(day)
	busy, err := s.busy(ctx, s.db, opens, closes)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var free []string
	for t := opens; !t.Add(svc.Duration()).After(closes); t = t.Add(s.hours.Slot) {
		if !t.After(now) {
			continue
		}
		if !overlaps(busy, t, t.Add(svc.Duration())) {
			free = append(free, t.Format("15:04"))
		}
	}
	return free, nil
}

// Book creates an appointment for the customer at start.
func (s *Store) Book(ctx context.Context, customerID, serviceName string, start time.Time) (Appointment, error) {
	svc, err := s.Service(ctx, serviceName)
	if err != nil {
		return Appointment{}, err
	}
	a := Appointment{
		ID:         uuid.Must(uuid.NewV7()).String(),
		CustomerID: customerID,
		Service:    svc.Name,
		Start:      start.In(s.hours.Location),
		Duration:   svc.Duration(),
		Status:     StatusBooked,
		CreatedAt:  s.now(),
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.checkFree(ctx, tx, a.Start, a.End(), ""); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO appointments (id, customer_id, service, start_at, end_at, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.CustomerID, a.Service, a.Start.Unix(), a.End().Unix(), a.Status, a.CreatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		return Appointment{}, fmt.Errorf("book %s at %s: %w", svc.Name, a.Start.Format("2006-01-02 15:04"), err)
	}
	return a, nil
}

// Cancel marks an appointment cancelled. A non-empty customerID
// restricts the operation to that customer's appointments.
func (s *Store) Cancel(ctx context.Context, id, customerID string) (Appointment, error) {
	a, err := s.owned(ctx, id, customerID)
	if err != nil {
		return Appointment{}, err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE appointments SET status = ? WHERE id = ?`, StatusCancelled, id,
	); err != nil {
		return Appointment{}, fmt.Errorf("cancel %s: %w", id, err)
	}
	a.Status = StatusCancelled
	return a, nil
}

// Reschedule moves an appointment to a new start time.
func (s *Store) Reschedule(ctx context.Context, id, customerID string, start time.Time) (Appointment, error) {
	a, err := s.owned(ctx, id, customerID)
	if err != nil {
		return Appointment{}, err
	}
	a.Start = start.In(s.hours.Location)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.checkFree(ctx, tx, a.Start, a.End(), a.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE appointments SET start_at = ?, end_at = ? WHERE id = ?`,
			a.Start.Unix(), a.End().Unix(), a.ID,
		)
		return err
	})
	if err != nil {
		return Appointment{}, fmt.Errorf("reschedule %s: %w", id, err)
	}
	return a, nil
}

// Get returns an appointment by ID.
func (s *Store) Get(ctx context.Context, id string) (Appointment, error) {
	rows, err := s.db.QueryContext(ctx, selectAppointments+` WHERE a.id = ?`, id)
	if err != nil {
		return Appointment{}, fmt.Errorf("get appointment %s: %w", id, err)
	}
	list, err := s.scanAppointments(rows)
	if err != nil {
		return Appointment{}, err
	}
	if len(list) == 0 {
		return Appointment{}, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	return list[0], nil
}

// Upcoming lists a customer's booked appointments starting after now.
func (s *Store) Upcoming(ctx context.Context, customerID string) ([]Appointment, error) {
	rows, err := s.db.QueryContext(ctx,
		selectAppointments+` WHERE a.customer_id = ? AND a.status = ? AND a.start_at > ? ORDER BY a.start_at`,
		customerID, StatusBooked, s.now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("list appointments for %s: %w", customerID, err)
	}
	return s.scanAppointments(rows)
}

// Day lists all booked appointments on day.
func (s *Store) Day(ctx context.Context, day time.Time) ([]Appointment, error) {
	d := day.In(s.hours.Location)
	from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.hours.Location)
	rows, err := s.db.QueryContext(ctx,
		selectAppointments+` WHERE a.status = ? AND a.start_at >= ? AND a.start_at < ? ORDER BY a.start_at`,
		StatusBooked, from.Unix(), from.AddDate(0, 0, 1).Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("list day %s: %w", from.Format("2006-01-02"), err)
	}
	return s.scanAppointments(rows)
}

// AddBlock marks a period unavailable.
func (s *Store) AddBlock(ctx context.Context, b Block) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blocks (start_at, end_at, reason) VALUES (?, ?, ?)`,
		b.Start.Unix(), b.Start.Add(b.Duration).Unix(), b.Reason,
	)
	if err != nil {
		return fmt.Errorf("add block: %w", err)
	}
	return nil
}

const selectAppointments = `
	SELECT a.id, a.customer_id, COALESCE(c.name, ''), a.service, a.start_at, a.end_at, a.status, a.created_at
	FROM appointments a LEFT JOIN customers c ON c.id = a.customer_id`

func (s *Store) scanAppointments(rows *sql.Rows) ([]Appointment, error) {
	defer rows.Close()
	var out []Appointment
	for rows.Next() {
		var a Appointment
		var start, end, created int64
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.CustomerName, &a.Service, &start, &end, &a.Status, &created); err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		a.Start = time.Unix(start, 0).In(s.hours.Location)
		a.Duration = time.Duration(end-start) * time.Second
		a.CreatedAt = time.Unix(created, 0).In(s.hours.Location)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) owned(ctx context.Context, id, customerID string) (Appointment, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	if customerID != "" && a.CustomerID != customerID {
		return Appointment{}, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	if a.Status != StatusBooked {
		return Appointment{}, fmt.Errorf("appointment %s is %s: %w", id, a.Status, ErrNotFound)
	}
	return a, nil
}

type span struct{ start, end time.Time }

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// busy returns booked and blocked spans overlapping [from, to).
func (s *Store) busy(ctx context.Context, q querier, from, to time.Time) ([]span, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT start_at, end_at FROM appointments WHERE status = ? AND start_at < ? AND end_at > ?
		 UNION ALL
		 SELECT start_at, end_at FROM blocks WHERE start_at < ? AND end_at > ?`,
		StatusBooked, to.Unix(), from.Unix(), to.Unix(), from.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query busy spans: %w", err)
	}
	defer rows.Close()

	var out []span
	for rows.Next() {
		var a, b int64
		if err := rows.Scan(&a, &b); err != nil {
			return nil, fmt.Errorf("scan busy span: %w", err)
		}
		out = append(out, span{time.Unix(a, 0), time.Unix(b, 0)})
	}
	return out, rows.Err()
}

// checkFree validates opening hours and conflicts for [start, end),
// ignoring the appointment named by except.
func (s *Store) checkFree(ctx context.Context, tx *sql.Tx, start, end time.Time, except string) error {
	opens, closes := s.hours.window(start)
	if start.Before(opens) || end.After(closes) || !start.After(s.now()) {
		return ErrOutsideHours
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT 1 FROM appointments WHERE status = ? AND id != ? AND start_at < ? AND end_at > ?
		 UNION ALL
		 SELECT 1 FROM blocks WHERE start_at < ? AND end_at > ?
		 LIMIT 1`,
		StatusBooked, except, end.Unix(), start.Unix(), end.Unix(), start.Unix(),
	)
	if err != nil {
		return fmt.Errorf("check conflicts: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		return ErrSlotTaken
	}
	return rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func overlaps(spans []span, start, end time.Time) bool {
	for _, sp := range spans {
		if sp.start.Before(end) && sp.end.After(start) {
			return true
		}
	}
	return false
}
