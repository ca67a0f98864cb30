// Package schedule coordinates the scheduling pipeline: it picks the
// single- or multi-occurrence path for a request, drives expansion, day
// planning, materialization and buffer synthesis, applies best-effort
// enrichment and persists every produced event in one batch upsert.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"taskcal/internal/buffer"
	"taskcal/internal/config"
	"taskcal/internal/dayplan"
	appLog "taskcal/internal/log"
	"taskcal/internal/materialize"
	"taskcal/internal/model"
	"taskcal/internal/recurrence"
	"taskcal/internal/search"
	"taskcal/internal/store"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrInvalidRequest wraps request problems detected before any work starts.
var ErrInvalidRequest = errors.New("schedule: invalid request")

// Expander turns a recurrence into day windows.
type Expander interface {
	Expand(ctx context.Context, in recurrence.ExpandInput) ([]model.DayWindow, error)
}

// Assigner plans a day's tasks.
type Assigner interface {
	Assign(ctx context.Context, req dayplan.Request) (dayplan.Schedule, error)
}

// Materializer persists tasks and creates primary events.
type Materializer interface {
	CreateTask(ctx context.Context, in materialize.TaskInput) (model.Task, error)
	CreateEventForTask(ctx context.Context, in materialize.EventInput) (*model.CalendarEvent, error)
	CreateTaskAndEvent(ctx context.Context, task materialize.TaskInput, event materialize.EventInput) (materialize.TaskEvent, error)
}

// BufferSynthesizer pads primary events.
type BufferSynthesizer interface {
	Synthesize(ctx context.Context, primary model.CalendarEvent, cfg *model.BufferTimeConfig) (buffer.Result, error)
}

// Embedder turns an event title into a search vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// TimezoneSource returns a user's configured IANA zone, or "".
type TimezoneSource interface {
	Timezone(userID string) string
}

// Deps are the collaborators of an Orchestrator. Embedder and Index may be
// nil, which disables search indexing. Timezones may be nil.
type Deps struct {
	Expander     Expander
	Assigner     Assigner
	Materializer Materializer
	Buffers      BufferSynthesizer
	Events       store.EventStore
	Reminders    store.ReminderStore
	Preferences  store.PreferenceStore
	Embedder     Embedder
	Index        search.Indexer
	Timezones    TimezoneSource

	// DefaultTimezone applies when neither the request nor the user has one.
	DefaultTimezone string

	Clock func() time.Time
	NewID func() string
}

// Result is the outcome of one run.
type Result struct {
	Status   string                `json:"status"`
	Events   []model.CalendarEvent `json:"events"`
	Tasks    []model.Task          `json:"tasks"`
	Failures []Failure             `json:"failures,omitempty"`
	Warnings []Failure             `json:"warnings,omitempty"`
}

// Orchestrator is the SchedulingOrchestrator. It is safe for concurrent
// use; each Run keeps its own state.
type Orchestrator struct {
	cfg  config.Scheduling
	deps Deps
}

func New(cfg config.Scheduling, deps Deps) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = materialize.NewEventID
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Orchestrator{cfg: cfg, deps: deps}
}

// run is the per-request accumulator. Only the orchestrating goroutine
// appends to it; occurrence workers return their own outcome.
type run struct {
	req model.AddTaskRequest
	loc *time.Location
	now time.Time

	events   []model.CalendarEvent
	tasks    []model.Task
	failures []Failure
	warnings []Failure
}

func (r *run) absorb(o outcome) {
	r.events = append(r.events, o.events...)
	r.failures = append(r.failures, o.failures...)
	r.warnings = append(r.warnings, o.warnings...)
}

// outcome is what one occurrence (or the single path) produced.
type outcome struct {
	events   []model.CalendarEvent
	failures []Failure
	warnings []Failure
}

func (o *outcome) fail(f Failure) {
	appLog.Error("scheduling item failed", f.Err, "class", f.Class, "stage", f.Stage, "task", f.Task)
	o.failures = append(o.failures, f)
}

func (o *outcome) warn(f Failure) {
	appLog.Warn("enrichment step failed", f.Err, "stage", f.Stage, "task", f.Task)
	o.warnings = append(o.warnings, f)
}

// Run schedules one request. Item-class problems are reported in
// Result.Failures and do not stop sibling work. A *RunError is returned for
// run-class problems; the Result still lists whatever was materialized.
func (o *Orchestrator) Run(ctx context.Context, req model.AddTaskRequest) (Result, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return Result{Status: StatusFailed}, fmt.Errorf("%w: userId is empty", ErrInvalidRequest)
	}
	if err := req.Recur.Validate(); err != nil {
		return Result{Status: StatusFailed}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	loc, err := o.location(req)
	if err != nil {
		return Result{Status: StatusFailed}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	r := &run{req: req, loc: loc, now: o.deps.Clock().In(loc)}
	if req.CurrentTime != nil {
		r.now = req.CurrentTime.In(loc)
	}

	multi := MultiOccurrence(req)
	appLog.Info("scheduling request",
		"user_id", req.UserID,
		"multi", multi,
		"tasks", len(req.TaskList),
		"timezone", loc.String(),
	)

	if multi {
		err = o.runMulti(ctx, r)
	} else {
		err = o.runSingle(ctx, r)
	}
	if err != nil {
		return r.result(StatusFailed), err
	}

	upsertCtx, cancel := o.callContext(ctx)
	defer cancel()
	if err := o.deps.Events.UpsertEvents(upsertCtx, r.events); err != nil {
		appLog.Error("final event upsert failed", err, "user_id", req.UserID, "events", len(r.events))
		return r.result(StatusFailed), &RunError{Stage: "upsert", Err: err}
	}

	appLog.Info("scheduling completed",
		"user_id", req.UserID,
		"events", len(r.events),
		"tasks", len(r.tasks),
		"failures", len(r.failures),
		"warnings", len(r.warnings),
	)
	return r.result(StatusCompleted), nil
}

// location resolves the request timezone: explicit, then the user's, then
// the configured default.
func (o *Orchestrator) location(req model.AddTaskRequest) (*time.Location, error) {
	name := req.Timezone
	if name == "" && o.deps.Timezones != nil {
		name = o.deps.Timezones.Timezone(req.UserID)
	}
	if name == "" {
		name = o.deps.DefaultTimezone
	}
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	return loc, nil
}

func (r *run) result(status string) Result {
	events := r.events
	if events == nil {
		events = []model.CalendarEvent{}
	}
	tasks := r.tasks
	if tasks == nil {
		tasks = []model.Task{}
	}
	return Result{Status: status, Events: events, Tasks: tasks, Failures: r.failures, Warnings: r.warnings}
}

// MultiOccurrence reports whether req takes the recurring path: it carries a
// task list and its due date is more than one whole day after its start.
func MultiOccurrence(req model.AddTaskRequest) bool {
	if len(req.TaskList) == 0 || req.StartDate == nil || req.DueDate == nil {
		return false
	}
	days := int(req.DueDate.Sub(*req.StartDate) / (24 * time.Hour))
	return days > 1
}

func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.cfg.CallTimeout)
}

// runMulti expands the recurrence once, creates each task once and then
// plans every occurrence window with bounded parallelism.
func (o *Orchestrator) runMulti(ctx context.Context, r *run) error {
	req := r.req
	in := recurrence.ExpandInput{
		UserID:    req.UserID,
		Start:     req.StartDate.In(r.loc),
		Until:     o.until(r),
		Location:  r.loc,
		Frequency: o.cfg.DefaultFrequency,
		Interval:  o.cfg.DefaultInterval,
	}
	if rule := req.Recur; rule != nil {
		if rule.Frequency != "" {
			in.Frequency = rule.Frequency
		}
		if rule.Interval > 0 {
			in.Interval = rule.Interval
		}
		in.Count = rule.Occurrence
		if in.Count > 0 && rule.EndDate == nil {
			// A count terminates the rule on its own.
			in.Until = time.Time{}
		}
		in.ByWeekDay = rule.ByWeekDay
		in.ByMonthDay = rule.ByMonthDay
	}

	expandCtx, cancel := o.callContext(ctx)
	windows, err := o.deps.Expander.Expand(expandCtx, in)
	cancel()
	if err != nil {
		var out outcome
		out.fail(Failure{Class: ClassItem, Stage: "expand", Err: err})
		r.absorb(out)
		return nil
	}

	tasks := make([]model.Task, len(req.TaskList))
	for i, item := range req.TaskList {
		taskCtx, cancel := o.callContext(ctx)
		t, err := o.deps.Materializer.CreateTask(taskCtx, materialize.TaskInput{
			UserID:   req.UserID,
			ListName: item.ListName,
			Text:     item.Task,
			Status:   item.Status,
			Priority: req.Priority,
			Duration: item.Duration,
		})
		cancel()
		if err != nil {
			return &RunError{Stage: "task", Err: err}
		}
		tasks[i] = t
		r.tasks = append(r.tasks, t)
	}

	labels := make([]dayplan.TaskLabel, len(req.TaskList))
	for i, item := range req.TaskList {
		labels[i] = dayplan.TaskLabel{Name: item.Task, Duration: item.Duration}
	}

	results := make([]outcome, len(windows))
	var g errgroup.Group
	g.SetLimit(o.cfg.Workers)
	for i, w := range windows {
		g.Go(func() error {
			results[i] = o.runOccurrence(ctx, r, w, tasks, labels)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		r.absorb(res)
	}
	return nil
}

// until resolves the expansion bound: the rule's end date, else the due
// date, else the end of the user's current day.
func (o *Orchestrator) until(r *run) time.Time {
	if r.req.Recur != nil && r.req.Recur.EndDate != nil {
		return r.req.Recur.EndDate.In(r.loc)
	}
	if r.req.DueDate != nil {
		return r.req.DueDate.In(r.loc)
	}
	n := r.now
	return time.Date(n.Year(), n.Month(), n.Day(), 23, 59, 0, 0, r.loc)
}

// runOccurrence plans one window with a single oracle call and then
// materializes each task in list order. It shares nothing mutable with
// other occurrences.
func (o *Orchestrator) runOccurrence(ctx context.Context, r *run, w model.DayWindow, tasks []model.Task, labels []dayplan.TaskLabel) outcome {
	var out outcome
	req := r.req
	day := w.Start

	assignCtx, cancel := o.callContext(ctx)
	sched, err := o.deps.Assigner.Assign(assignCtx, dayplan.Request{
		UserID:     req.UserID,
		Tasks:      labels,
		Location:   r.loc,
		Window:     w,
		Now:        r.now,
		Buffer:     req.BufferTime,
		StartOfDay: req.StartDate,
	})
	cancel()
	if err != nil {
		out.fail(Failure{Class: ClassItem, Stage: "assign", Occurrence: &day, Err: err})
		return out
	}

	for i, item := range req.TaskList {
		slot, ok := sched.Lookup(item.Task)
		if !ok {
			out.fail(Failure{Class: ClassItem, Stage: "assign", Task: item.Task, Occurrence: &day,
				Err: fmt.Errorf("%w: %s", dayplan.ErrUnscheduledTask, item.Task)})
			continue
		}
		start, _ := slot.Bounds(w.Start, r.loc)

		evCtx, cancel := o.callContext(ctx)
		ev, err := o.deps.Materializer.CreateEventForTask(evCtx, materialize.EventInput{
			UserID:       req.UserID,
			ListName:     item.ListName,
			TaskID:       tasks[i].ID,
			Title:        item.Task,
			Timezone:     r.loc,
			Start:        start,
			EventID:      o.deps.NewID(),
			Duration:     slot.Minutes(),
			Priority:     req.Priority,
			AllDay:       req.AllDay,
			Reminders:    req.Reminders,
			Transparency: req.Transparency,
			Visibility:   req.Visibility,
			Location:     req.Location,
		})
		cancel()
		if err != nil {
			out.fail(Failure{Class: ClassItem, Stage: "materialize", Task: item.Task, Occurrence: &day, Err: err})
			continue
		}
		if ev == nil {
			continue
		}
		o.finish(ctx, r, &out, *ev, item.Task, &day)
	}
	return out
}

// runSingle creates one task and its event.
func (o *Orchestrator) runSingle(ctx context.Context, r *run) error {
	req := r.req

	var soft, hard *time.Time
	if req.DueDate != nil {
		due := req.DueDate.In(r.loc)
		if req.DeadlineType == model.DeadlineHard {
			hard = &due
		} else {
			soft = &due
		}
	}

	var start time.Time
	switch {
	case req.StartDate != nil:
		start = req.StartDate.In(r.loc)
	case req.DueDate != nil:
		start = req.DueDate.In(r.loc).Add(-time.Duration(o.cfg.DeadlineLeadMinutes) * time.Minute)
	default:
		start = r.now
	}

	callCtx, cancel := o.callContext(ctx)
	te, err := o.deps.Materializer.CreateTaskAndEvent(callCtx,
		materialize.TaskInput{
			UserID:       req.UserID,
			ListName:     o.cfg.DefaultListName,
			Text:         req.Title,
			Status:       model.TaskStatusTodo,
			Priority:     req.Priority,
			SoftDeadline: soft,
			HardDeadline: hard,
			Duration:     req.Duration,
		},
		materialize.EventInput{
			UserID:       req.UserID,
			ListName:     o.cfg.DefaultListName,
			Title:        req.Title,
			Timezone:     r.loc,
			Start:        start,
			SoftDeadline: soft,
			HardDeadline: hard,
			EventID:      o.deps.NewID(),
			Duration:     req.Duration,
			Priority:     req.Priority,
			AllDay:       req.AllDay,
			Reminders:    req.Reminders,
			Recurrence:   req.Recur,
			Transparency: req.Transparency,
			Visibility:   req.Visibility,
			Location:     req.Location,
		})
	cancel()
	if te.Task.ID == "" && err != nil {
		return &RunError{Stage: "task", Err: err}
	}
	r.tasks = append(r.tasks, te.Task)

	var out outcome
	switch {
	case err != nil:
		out.fail(Failure{Class: ClassItem, Stage: "materialize", Task: req.Title, Err: err})
	case te.Event != nil:
		o.finish(ctx, r, &out, *te.Event, req.Title, nil)
	}
	r.absorb(out)
	return nil
}

// finish synthesizes buffers, queues the resulting events and runs the
// enrichment steps for one primary event.
func (o *Orchestrator) finish(ctx context.Context, r *run, out *outcome, primary model.CalendarEvent, title string, day *time.Time) {
	bufCtx, cancel := o.callContext(ctx)
	res, err := o.deps.Buffers.Synthesize(bufCtx, primary, r.req.BufferTime)
	cancel()
	// Whatever reached the provider is queued even when buffering failed.
	out.events = append(out.events, buffer.Link(res)...)
	if err != nil {
		out.fail(Failure{Class: ClassItem, Stage: "buffer", Task: title, Occurrence: day, Err: err})
		return
	}

	o.enrich(ctx, r, out, primary, title)
}

func (o *Orchestrator) enrich(ctx context.Context, r *run, out *outcome, primary model.CalendarEvent, title string) {
	req := r.req
	now := o.deps.Clock()

	reminders := Reminders(primary, req.Reminders, now, o.deps.NewID)
	if len(reminders) > 0 {
		callCtx, cancel := o.callContext(ctx)
		err := o.deps.Reminders.InsertReminders(callCtx, reminders)
		cancel()
		if err != nil {
			out.warn(Failure{Class: ClassEnrichment, Stage: "reminders", Task: title, Err: err})
		}
	}

	ranges, err := PreferredTimeRanges(primary, req.TimePreferences, now, o.deps.NewID)
	if err != nil {
		out.warn(Failure{Class: ClassEnrichment, Stage: "preferences", Task: title, Err: err})
	}
	if len(ranges) > 0 {
		callCtx, cancel := o.callContext(ctx)
		err := o.deps.Preferences.UpsertPreferredTimeRanges(callCtx, ranges)
		cancel()
		if err != nil {
			out.warn(Failure{Class: ClassEnrichment, Stage: "preferences", Task: title, Err: err})
		}
	}

	if o.deps.Embedder == nil || o.deps.Index == nil {
		return
	}

	embedCtx, cancel := o.callContext(ctx)
	vector, err := o.deps.Embedder.Embed(embedCtx, title)
	cancel()
	if err != nil {
		out.warn(Failure{Class: ClassEnrichment, Stage: "embed", Task: title, Err: err})
		return
	}

	if len(ranges) > 0 || req.Priority > 1 {
		callCtx, cancel := o.callContext(ctx)
		err := o.deps.Index.IndexTraining(callCtx, search.Doc{EventID: primary.ID, Vector: vector, UserID: primary.UserID})
		cancel()
		if err != nil {
			out.warn(Failure{Class: ClassEnrichment, Stage: "train-index", Task: title, Err: err})
		}
	}

	start, end := primary.StartDate, primary.EndDate
	callCtx, cancel := o.callContext(ctx)
	err = o.deps.Index.IndexEvent(callCtx, search.Doc{
		EventID: primary.ID,
		Vector:  vector,
		UserID:  primary.UserID,
		Start:   &start,
		End:     &end,
	})
	cancel()
	if err != nil {
		out.warn(Failure{Class: ClassEnrichment, Stage: "index", Task: title, Err: err})
	}
}

// Reminders builds override reminders for an event that already has an ID.
func Reminders(ev model.CalendarEvent, minutes []int, now time.Time, newID func() string) []model.Reminder {
	if ev.ID == "" || len(minutes) == 0 {
		return nil
	}
	out := make([]model.Reminder, 0, len(minutes))
	for _, m := range minutes {
		out = append(out, model.Reminder{
			ID:        newID(),
			UserID:    ev.UserID,
			EventID:   ev.ID,
			Timezone:  ev.Timezone,
			Minutes:   m,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return out
}

// PreferredTimeRanges builds one range per preference weekday, or one
// weekday-less range when a preference names no day.
func PreferredTimeRanges(ev model.CalendarEvent, prefs []model.TimePreference, now time.Time, newID func() string) ([]model.PreferredTimeRange, error) {
	if ev.ID == "" || len(prefs) == 0 {
		return nil, nil
	}
	var (
		out  []model.PreferredTimeRange
		errs []error
	)
	base := func() model.PreferredTimeRange {
		return model.PreferredTimeRange{
			UserID:    ev.UserID,
			EventID:   ev.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	for _, p := range prefs {
		if len(p.DayOfWeek) == 0 {
			tr := base()
			tr.ID = newID()
			tr.StartTime, tr.EndTime = p.TimeRange.StartTime, p.TimeRange.EndTime
			out = append(out, tr)
			continue
		}
		for _, code := range p.DayOfWeek {
			d, err := model.ParseWeekday(code)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			iso := model.ISOWeekday(d)
			tr := base()
			tr.ID = newID()
			tr.DayOfWeek = &iso
			tr.StartTime, tr.EndTime = p.TimeRange.StartTime, p.TimeRange.EndTime
			out = append(out, tr)
		}
	}
	return out, errors.Join(errs...)
}
