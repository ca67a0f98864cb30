// Package store defines the persistence boundary of the scheduling pipeline.
package store

import (
	"context"
	"errors"
	"time"

	"taskcal/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// TaskStore persists tasks. CreateTask returns the stored record.
type TaskStore interface {
	CreateTask(ctx context.Context, t model.Task) (model.Task, error)
}

// EventStore persists calendar events. UpsertEvents is idempotent by
// composite event ID.
type EventStore interface {
	UpsertEvents(ctx context.Context, events []model.CalendarEvent) error
	// ListEvents returns the user's non-deleted events overlapping [start, end).
	ListEvents(ctx context.Context, userID string, start, end time.Time) ([]model.CalendarEvent, error)
}

type ReminderStore interface {
	InsertReminders(ctx context.Context, reminders []model.Reminder) error
}

type PreferenceStore interface {
	UpsertPreferredTimeRanges(ctx context.Context, ranges []model.PreferredTimeRange) error
}

// Store is the full persistence surface.
type Store interface {
	TaskStore
	EventStore
	ReminderStore
	PreferenceStore
}
