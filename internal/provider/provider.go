// Package provider defines the calendar-provider boundary used to create
// events on a user's external calendar.
package provider

import (
	"context"
	"time"

	"taskcal/internal/model"
)

// EventRequest carries everything a provider needs to create one event.
type EventRequest struct {
	UserID     string
	CalendarID string
	ClientType string

	// EventID is the requested provider event ID. Providers may ignore it
	// and assign their own.
	EventID string

	Title       string
	Description string
	Location    string

	Start    time.Time
	End      time.Time
	AllDay   bool
	Timezone string

	// Recurrence holds iCalendar lines ("RRULE:...").
	Recurrence []string
	// Reminders are override offsets in minutes; empty means provider default.
	Reminders      []int
	ReminderMethod string

	Transparency model.Transparency
	Visibility   model.Visibility
	ColorID      string
}

// Provider creates events on an external calendar and returns the
// provider-assigned event ID.
type Provider interface {
	CreateEvent(ctx context.Context, req EventRequest) (string, error)
}

// DateOnly formats t as an all-day date in its own location.
func DateOnly(t time.Time) string {
	return t.Format(time.DateOnly)
}

// AllDayEnd returns the exclusive end date of an all-day event. A range that
// does not reach past the start date is widened to cover the start day.
func AllDayEnd(start, end time.Time) time.Time {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())
	if !e.After(s) {
		return s.AddDate(0, 0, 1)
	}
	return end
}
