package booking

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

var testNow = time.Date(2026, 3, 9, 10, 5, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(db, Hours{Open: 9, Close: 12, Slot: 30 * time.Minute, Location: time.UTC})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	s.now = func() time.Time { return testNow }

	err = s.SyncServices(context.Background(), []Service{
		{Name: "Corte de Cabelo", DurationMinutes: 30, Price: 50},
		{Name: "Barba", DurationMinutes: 60},
	})
	if err != nil {
		t.Fatalf("SyncServices: %v", err)
	}
	return s
}

func at(day, hhmm string) time.Time {
	t, _ := time.ParseInLocation("2006-01-02 15:04", day+" "+hhmm, time.UTC)
	return t
}

func TestService_CaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	svc, err := s.Service(context.Background(), "corte de cabelo")
	if err != nil {
		t.Fatalf("Service: %v", err)
	}
	if svc.Name != "Corte de Cabelo" || svc.Duration() != 30*time.Minute {
		t.Errorf("Service = %+v", svc)
	}

	_, err = s.Service(context.Background(), "Massagem")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown service error = %v, want ErrNotFound", err)
	}
}

func TestAvailable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	corte, _ := s.Service(ctx, "Corte de Cabelo")

	got, err := s.Available(ctx, corte, at("2026-03-10", "00:00"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Available tomorrow = %v, want %v", got, want)
	}

	// Past slots today are excluded.
	got, _ = s.Available(ctx, corte, testNow)
	if !reflect.DeepEqual(got, []string{"10:30", "11:00", "11:30"}) {
		t.Errorf("Available today = %v", got)
	}

	if _, err := s.Book(ctx, "u1", "Barba", at("2026-03-10", "10:00")); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Available(ctx, corte, at("2026-03-10", "00:00"))
	if !reflect.DeepEqual(got, []string{"09:00", "09:30", "11:00", "11:30"}) {
		t.Errorf("Available after booking = %v", got)
	}
}

func TestBook(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.Book(ctx, "u1", "corte de cabelo", at("2026-03-10", "14:00"))
	if !errors.Is(err, ErrOutsideHours) {
		t.Errorf("after-hours booking error = %v, want ErrOutsideHours", err)
	}

	a, err = s.Book(ctx, "u1", "corte de cabelo", at("2026-03-10", "09:30"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if a.ID == "" || a.Service != "Corte de Cabelo" || a.Status != StatusBooked {
		t.Errorf("Book = %+v", a)
	}

	_, err = s.Book(ctx, "u2", "Barba", at("2026-03-10", "09:00"))
	if !errors.Is(err, ErrSlotTaken) {
		t.Errorf("overlapping booking error = %v, want ErrSlotTaken", err)
	}

	_, err = s.Book(ctx, "u1", "Barba", at("2026-03-09", "09:00"))
	if !errors.Is(err, ErrOutsideHours) {
		t.Errorf("past booking error = %v, want ErrOutsideHours", err)
	}
}

func TestCancelAndReschedule(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.Book(ctx, "u1", "Barba", at("2026-03-10", "09:00"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Cancel(ctx, a.ID, "someone-else"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cancel by other customer error = %v, want ErrNotFound", err)
	}

	moved, err := s.Reschedule(ctx, a.ID, "u1", at("2026-03-10", "11:00"))
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if moved.Start.Format("15:04") != "11:00" || moved.End().Format("15:04") != "12:00" {
		t.Errorf("rescheduled to %s-%s", moved.Start.Format("15:04"), moved.End().Format("15:04"))
	}

	// Rescheduling onto its own slot does not conflict with itself.
	if _, err := s.Reschedule(ctx, a.ID, "u1", at("2026-03-10", "10:30")); err != nil {
		t.Errorf("overlapping own slot: %v", err)
	}

	up, err := s.Upcoming(ctx, "u1")
	if err != nil || len(up) != 1 {
		t.Fatalf("Upcoming = %v, %v", up, err)
	}

	if _, err := s.Cancel(ctx, a.ID, "u1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := s.Cancel(ctx, a.ID, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("second cancel error = %v, want ErrNotFound", err)
	}
	if up, _ := s.Upcoming(ctx, "u1"); len(up) != 0 {
		t.Errorf("cancelled appointment still upcoming: %+v", up)
	}
}

func TestDayAndBlocks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.UpsertCustomer(ctx, Customer{ID: "u1", Name: "Ana"}); err != nil {
		t.Fatal(err)
	}
	c, err := s.UpsertCustomer(ctx, Customer{ID: "u1"})
	if err != nil || c.Name != "Ana" {
		t.Errorf("upsert without name = %+v, %v; want name kept", c, err)
	}

	if _, err := s.Book(ctx, "u1", "Corte de Cabelo", at("2026-03-10", "09:00")); err != nil {
		t.Fatal(err)
	}
	if err := s.AddBlock(ctx, Block{Start: at("2026-03-10", "11:00"), Duration: time.Hour, Reason: "lunch"}); err != nil {
		t.Fatal(err)
	}

	day, err := s.Day(ctx, at("2026-03-10", "00:00"))
	if err != nil || len(day) != 1 || day[0].CustomerName != "Ana" {
		t.Fatalf("Day = %+v, %v", day, err)
	}

	if _, err := s.Book(ctx, "u1", "Corte de Cabelo", at("2026-03-10", "11:30")); !errors.Is(err, ErrSlotTaken) {
		t.Errorf("booking into block error = %v, want ErrSlotTaken", err)
	}
}
