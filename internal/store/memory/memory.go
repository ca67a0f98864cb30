// Package memory is an in-process Store used for tests and one-shot runs.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"taskcal/internal/model"
	"taskcal/internal/store"
)

// Store keeps every record in maps guarded by a single mutex.
type Store struct {
	mu        sync.RWMutex
	tasks     map[string]model.Task
	events    map[string]model.CalendarEvent
	reminders map[string]model.Reminder
	ranges    map[string]model.PreferredTimeRange

	upserts int
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		tasks:     make(map[string]model.Task),
		events:    make(map[string]model.CalendarEvent),
		reminders: make(map[string]model.Reminder),
		ranges:    make(map[string]model.PreferredTimeRange),
	}
}

func (s *Store) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	if err := ctx.Err(); err != nil {
		return model.Task{}, err
	}
	if t.ID == "" {
		return model.Task{}, errors.New("memory: task ID is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; ok {
		return model.Task{}, errors.New("memory: task already exists: " + t.ID)
	}
	s.tasks[t.ID] = t
	return t, nil
}

func (s *Store) UpsertEvents(ctx context.Context, events []model.CalendarEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	for _, ev := range events {
		if ev.ID == "" {
			return errors.New("memory: event ID is empty")
		}
		s.events[ev.ID] = ev
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, userID string, start, end time.Time) ([]model.CalendarEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CalendarEvent, 0)
	for _, ev := range s.events {
		if ev.UserID != userID || ev.Deleted || !ev.Overlaps(start, end) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (s *Store) InsertReminders(ctx context.Context, reminders []model.Reminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range reminders {
		if r.EventID == "" {
			return errors.New("memory: reminder without event ID")
		}
		s.reminders[r.ID] = r
	}
	return nil
}

func (s *Store) UpsertPreferredTimeRanges(ctx context.Context, ranges []model.PreferredTimeRange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range ranges {
		if r.EventID == "" {
			return errors.New("memory: preferred time range without event ID")
		}
		s.ranges[r.ID] = r
	}
	return nil
}

// Task returns a stored task.
func (s *Store) Task(id string) (model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, store.ErrNotFound
	}
	return t, nil
}

// Tasks returns all stored tasks.
func (s *Store) Tasks() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

// Events returns all stored events ordered by start.
func (s *Store) Events() []model.CalendarEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CalendarEvent, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out
}

// Reminders returns all stored reminders.
func (s *Store) Reminders() []model.Reminder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		out = append(out, r)
	}
	return out
}

// PreferredTimeRanges returns all stored ranges.
func (s *Store) PreferredTimeRanges() []model.PreferredTimeRange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PreferredTimeRange, 0, len(s.ranges))
	for _, r := range s.ranges {
		out = append(out, r)
	}
	return out
}

// UpsertCalls reports how many times UpsertEvents was called.
func (s *Store) UpsertCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upserts
}
