// Package firestore implements store.Store on Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcfs "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	appLog "taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/store"
)

// Collection names.
const (
	TaskCollection     = "Task"
	EventCollection    = "Event"
	ReminderCollection = "Reminder"
	RangeCollection    = "PreferredTimeRange"
)

// Store persists pipeline records in Firestore collections keyed by record ID.
type Store struct {
	client *gcfs.Client
}

var _ store.Store = (*Store)(nil)

// Connect initializes a Firebase app from a service-account file and opens
// its Firestore client.
func Connect(ctx context.Context, credentialsFile string) (*Store, error) {
	if credentialsFile == "" {
		return nil, errors.New("firestore: credentials file is empty")
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("firestore: init app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore: open client: %w", err)
	}
	appLog.Info("firestore connection established")
	return &Store{client: client}, nil
}

// New wraps an existing client.
func New(client *gcfs.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	if t.ID == "" {
		return model.Task{}, errors.New("firestore: task ID is empty")
	}
	// Create fails if the document exists, so a reused ID never overwrites.
	if _, err := s.client.Collection(TaskCollection).Doc(t.ID).Create(ctx, t); err != nil {
		return model.Task{}, fmt.Errorf("firestore: create task %s: %w", t.ID, err)
	}
	return t, nil
}

func (s *Store) UpsertEvents(ctx context.Context, events []model.CalendarEvent) error {
	if len(events) == 0 {
		return nil
	}
	bw := s.client.BulkWriter(ctx)
	jobs := make([]*gcfs.BulkWriterJob, 0, len(events))
	for _, ev := range events {
		if ev.ID == "" {
			bw.End()
			return errors.New("firestore: event ID is empty")
		}
		job, err := bw.Set(s.client.Collection(EventCollection).Doc(ev.ID), ev)
		if err != nil {
			bw.End()
			return fmt.Errorf("firestore: queue event %s: %w", ev.ID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	var errs []error
	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", events[i].ID, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("firestore: upsert events: %w", errors.Join(errs...))
	}
	return nil
}

// ListEvents queries by user and start bound, then applies the end bound
// locally since Firestore allows range filters on one field per query.
func (s *Store) ListEvents(ctx context.Context, userID string, start, end time.Time) ([]model.CalendarEvent, error) {
	iter := s.client.Collection(EventCollection).
		Where("userId", "==", userID).
		Where("startDate", "<", end).
		Documents(ctx)
	defer iter.Stop()

	out := make([]model.CalendarEvent, 0)
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore: list events: %w", err)
		}
		var ev model.CalendarEvent
		if err := doc.DataTo(&ev); err != nil {
			appLog.Warn("firestore: skipping undecodable event", err, "doc", doc.Ref.ID)
			continue
		}
		if ev.Deleted || !ev.Overlaps(start, end) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *Store) InsertReminders(ctx context.Context, reminders []model.Reminder) error {
	if len(reminders) == 0 {
		return nil
	}
	batch := s.client.Batch()
	for _, r := range reminders {
		if r.EventID == "" {
			return errors.New("firestore: reminder without event ID")
		}
		batch.Set(s.client.Collection(ReminderCollection).Doc(r.ID), r)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("firestore: insert reminders: %w", err)
	}
	return nil
}

func (s *Store) UpsertPreferredTimeRanges(ctx context.Context, ranges []model.PreferredTimeRange) error {
	if len(ranges) == 0 {
		return nil
	}
	batch := s.client.Batch()
	for _, r := range ranges {
		if r.EventID == "" {
			return errors.New("firestore: preferred time range without event ID")
		}
		batch.Set(s.client.Collection(RangeCollection).Doc(r.ID), r)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("firestore: upsert preferred time ranges: %w", err)
	}
	return nil
}
