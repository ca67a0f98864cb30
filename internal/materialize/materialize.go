// Package materialize persists tasks and creates their primary calendar
// events through the calendar provider.
package materialize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	appLog "taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/provider"
	"taskcal/internal/recurrence"
	"taskcal/internal/store"
)

// CalendarDirectory resolves a user's default calendar.
type CalendarDirectory interface {
	DefaultCalendar(ctx context.Context, userID string) (*model.Calendar, error)
}

// Defaults are applied to incomplete inputs.
type Defaults struct {
	ListName        string
	DurationMinutes int
	Priority        int
	ReminderMethod  string
	// Resource is the calendar resource the provider serves; calendars of
	// another resource are ignored.
	Resource string
}

// TaskInput describes a task to persist.
type TaskInput struct {
	UserID       string
	ListName     string
	Text         string
	Status       model.TaskStatus
	Priority     int
	Important    bool
	SoftDeadline *time.Time
	HardDeadline *time.Time
	Duration     int
	EventID      string
}

// EventInput describes a primary event to create for a task.
type EventInput struct {
	UserID   string
	ListName string
	TaskID   string
	Title    string
	Timezone *time.Location
	Start    time.Time

	SoftDeadline *time.Time
	HardDeadline *time.Time

	// EventID is the requested provider event ID; generated when empty.
	EventID  string
	Duration int
	Priority int
	AllDay   bool

	Reminders    []int
	Recurrence   *model.RecurrenceRule
	Transparency model.Transparency
	Visibility   model.Visibility
	Location     string
}

// TaskEvent is the outcome of CreateTaskAndEvent. Event is nil when the
// user has no calendar.
type TaskEvent struct {
	Task  model.Task
	Event *model.CalendarEvent
}

// Materializer is the TaskEventMaterializer. Events it returns are not
// persisted; the caller queues them for a batch upsert.
type Materializer struct {
	tasks     store.TaskStore
	calendars CalendarDirectory
	provider  provider.Provider
	defaults  Defaults
	clock     func() time.Time
	newID     func() string
}

// Option customizes a Materializer.
type Option func(*Materializer)

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(m *Materializer) { m.clock = clock }
}

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(gen func() string) Option {
	return func(m *Materializer) { m.newID = gen }
}

func New(tasks store.TaskStore, calendars CalendarDirectory, p provider.Provider, defaults Defaults, opts ...Option) *Materializer {
	if defaults.ListName == "" {
		defaults.ListName = "Master"
	}
	if defaults.DurationMinutes <= 0 {
		defaults.DurationMinutes = 30
	}
	if defaults.Priority <= 0 {
		defaults.Priority = 1
	}
	m := &Materializer{
		tasks:     tasks,
		calendars: calendars,
		provider:  p,
		defaults:  defaults,
		clock:     time.Now,
		newID:     NewEventID,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// NewEventID returns a provider-safe identifier (lowercase hex, no dashes).
func NewEventID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CreateTask persists a new task with a fresh ID.
func (m *Materializer) CreateTask(ctx context.Context, in TaskInput) (model.Task, error) {
	now := m.clock()
	status := in.Status
	if !status.Valid() {
		status = model.TaskStatusTodo
	}
	t := model.Task{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		EventID:      in.EventID,
		Type:         m.listName(in.ListName),
		Notes:        in.Text,
		Important:    in.Important,
		Status:       status,
		Priority:     m.priority(in.Priority),
		SoftDeadline: in.SoftDeadline,
		HardDeadline: in.HardDeadline,
		Duration:     in.Duration,
		CreatedDate:  now,
		UpdatedAt:    now,
	}
	stored, err := m.tasks.CreateTask(ctx, t)
	if err != nil {
		return model.Task{}, fmt.Errorf("materialize: persist task: %w", err)
	}
	return stored, nil
}

// CreateTaskAndEvent persists the task first and then creates its event, so
// a provider failure never loses the task.
func (m *Materializer) CreateTaskAndEvent(ctx context.Context, task TaskInput, event EventInput) (TaskEvent, error) {
	if event.EventID == "" {
		event.EventID = m.newID()
	}
	task.EventID = event.EventID

	t, err := m.CreateTask(ctx, task)
	if err != nil {
		return TaskEvent{}, err
	}

	event.TaskID = t.ID
	ev, err := m.CreateEventForTask(ctx, event)
	if err != nil {
		return TaskEvent{Task: t}, err
	}
	return TaskEvent{Task: t, Event: ev}, nil
}

// CreateEventForTask creates the primary provider event for an existing
// task. It returns (nil, nil) when the user has no calendar of the
// configured resource.
func (m *Materializer) CreateEventForTask(ctx context.Context, in EventInput) (*model.CalendarEvent, error) {
	cal, err := m.calendars.DefaultCalendar(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("materialize: default calendar: %w", err)
	}
	if cal == nil || cal.ID == "" || (m.defaults.Resource != "" && cal.Resource != m.defaults.Resource) {
		appLog.Info("no provider calendar; skipping event", "user_id", in.UserID, "task_id", in.TaskID)
		return nil, nil
	}

	tz := in.Timezone
	if tz == nil {
		tz = time.UTC
	}
	duration := in.Duration
	if duration <= 0 {
		duration = m.defaults.DurationMinutes
	}
	start := in.Start.In(tz)
	end := start.Add(time.Duration(duration) * time.Minute)
	listName := m.listName(in.ListName)

	var recur []string
	rule, err := recurrence.RuleString(in.Recurrence)
	if err != nil {
		return nil, fmt.Errorf("materialize: %w", err)
	}
	if rule != "" {
		recur = []string{rule}
	}

	requested := in.EventID
	if requested == "" {
		requested = m.newID()
	}

	providerID, err := m.provider.CreateEvent(ctx, provider.EventRequest{
		UserID:         in.UserID,
		CalendarID:     cal.ID,
		EventID:        requested,
		Title:          in.Title,
		Description:    in.Title,
		Location:       in.Location,
		Start:          start,
		End:            end,
		AllDay:         in.AllDay,
		Timezone:       tz.String(),
		Recurrence:     recur,
		Reminders:      in.Reminders,
		ReminderMethod: m.defaults.ReminderMethod,
		Transparency:   in.Transparency,
		Visibility:     in.Visibility,
		ColorID:        cal.ColorID,
	})
	if err != nil {
		return nil, fmt.Errorf("materialize: create provider event: %w", err)
	}

	now := m.clock()
	ev := &model.CalendarEvent{
		ID:              model.CompositeEventID(providerID, cal.ID),
		EventID:         providerID,
		CalendarID:      cal.ID,
		UserID:          in.UserID,
		Title:           in.Title,
		Summary:         in.Title,
		Notes:           in.Title,
		StartDate:       start,
		EndDate:         end,
		AllDay:          in.AllDay,
		Timezone:        tz.String(),
		Duration:        duration,
		TaskID:          in.TaskID,
		TaskType:        listName,
		DailyTaskList:   listName == "Daily",
		WeeklyTaskList:  listName == "Weekly",
		Priority:        m.priority(in.Priority),
		ColorID:         cal.ColorID,
		BackgroundColor: cal.BackgroundColor,
		Transparency:    in.Transparency,
		Visibility:      in.Visibility,
		Location:        in.Location,
		Recurrence:      recur,
		Reminders:       append([]int(nil), in.Reminders...),
		SoftDeadline:    in.SoftDeadline,
		HardDeadline:    in.HardDeadline,
		Modifiable:      true,
		Method:          "create",
		CreatedDate:     now,
		UpdatedAt:       now,
	}
	return ev, nil
}

func (m *Materializer) listName(name string) string {
	if strings.TrimSpace(name) == "" {
		return m.defaults.ListName
	}
	return name
}

func (m *Materializer) priority(p int) int {
	if p <= 0 {
		return m.defaults.Priority
	}
	return p
}
