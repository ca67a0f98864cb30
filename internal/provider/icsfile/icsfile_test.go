package icsfile

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"taskcal/internal/model"
	"taskcal/internal/provider"
)

func fixedClock() time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestCreateEvent_RoundTrip(t *testing.T) {
	p, err := New(t.TempDir(), fixedClock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	id, err := p.CreateEvent(context.Background(), provider.EventRequest{
		UserID:       "u1",
		CalendarID:   "primary",
		EventID:      "ev1",
		Title:        "Exercise",
		Location:     "Gym",
		Start:        start,
		End:          start.Add(45 * time.Minute),
		Recurrence:   []string{"RRULE:FREQ=WEEKLY;INTERVAL=1;BYDAY=TU"},
		Reminders:    []int{10, 60},
		Transparency: model.TransparencyTransparent,
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if id != "ev1" {
		t.Errorf("id = %q", id)
	}

	// A generated UID when none is requested.
	second, err := p.CreateEvent(context.Background(), provider.EventRequest{
		UserID: "u1", CalendarID: "primary", Title: "Read",
		Start: start.Add(time.Hour), End: start.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateEvent (generated id): %v", err)
	}
	if second == "" || strings.Contains(second, "-") {
		t.Errorf("generated id = %q", second)
	}

	events, err := p.Events("u1", "primary")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	ev := events[0]
	if ev.UID != "ev1" || ev.Summary != "Exercise" || ev.Location != "Gym" {
		t.Errorf("event = %+v", ev)
	}
	if !ev.Start.Equal(start) || !ev.End.Equal(start.Add(45*time.Minute)) {
		t.Errorf("times = %v..%v", ev.Start, ev.End)
	}
	if ev.RawRRule != "FREQ=WEEKLY;INTERVAL=1;BYDAY=TU" {
		t.Errorf("rrule = %q", ev.RawRRule)
	}
	if ev.AlarmCount != 2 {
		t.Errorf("alarms = %d", ev.AlarmCount)
	}

	raw, err := os.ReadFile(p.Path("u1", "primary"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "TRANSP:TRANSPARENT") || !strings.Contains(string(raw), "TRIGGER:-PT10M") {
		t.Errorf("serialized calendar missing properties:\n%s", raw)
	}
}

func TestCreateEvent_RejectsDuplicateUID(t *testing.T) {
	p, _ := New(t.TempDir(), fixedClock)
	req := provider.EventRequest{
		UserID: "u1", CalendarID: "primary", EventID: "dup", Title: "A",
		Start: fixedClock(), End: fixedClock().Add(time.Hour),
	}
	if _, err := p.CreateEvent(context.Background(), req); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := p.CreateEvent(context.Background(), req); err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestCreateEvent_AllDayUsesDateValues(t *testing.T) {
	p, _ := New(t.TempDir(), fixedClock)
	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	_, err := p.CreateEvent(context.Background(), provider.EventRequest{
		UserID: "u1", CalendarID: "primary", EventID: "allday", Title: "Offsite",
		Start: day, End: day.AddDate(0, 0, 1), AllDay: true,
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	raw, _ := os.ReadFile(p.Path("u1", "primary"))
	if !strings.Contains(string(raw), "DTSTART;VALUE=DATE:20240105") {
		t.Errorf("all-day start not written as DATE:\n%s", raw)
	}
}

func TestCreateEvent_ShortAllDayCoversStartDay(t *testing.T) {
	p, _ := New(t.TempDir(), fixedClock)
	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	_, err := p.CreateEvent(context.Background(), provider.EventRequest{
		UserID: "u1", CalendarID: "primary", EventID: "short", Title: "Errand",
		Start: day, End: day.Add(30 * time.Minute), AllDay: true,
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	raw, _ := os.ReadFile(p.Path("u1", "primary"))
	if !strings.Contains(string(raw), "DTEND;VALUE=DATE:20240106") {
		t.Errorf("all-day end not moved past start:\n%s", raw)
	}
}

func TestCreateEvent_SeparatesUsersOnDisk(t *testing.T) {
	p, _ := New(t.TempDir(), fixedClock)
	if a, b := p.Path("u/1", "cal"), p.Path("u1", "cal"); a == b {
		t.Errorf("paths collide: %s", a)
	}
	if _, err := p.CreateEvent(context.Background(), provider.EventRequest{CalendarID: "c"}); err == nil {
		t.Error("expected error without user ID")
	}
}
