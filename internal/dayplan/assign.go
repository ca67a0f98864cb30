// Package dayplan assigns minute-level time slots to a day's tasks by
// delegating to an external planning oracle.
package dayplan

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	appLog "taskcal/internal/log"
	"taskcal/internal/model"
)

// ErrUnscheduledTask marks a task the oracle left out of its schedule.
var ErrUnscheduledTask = errors.New("dayplan: task missing from oracle schedule")

// Oracle completes a planning prompt.
type Oracle interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// EventLister returns events already on the user's calendar.
type EventLister interface {
	ListEvents(ctx context.Context, userID string, start, end time.Time) ([]model.CalendarEvent, error)
}

// TaskLabel is a task name with an optional explicit duration in minutes.
type TaskLabel struct {
	Name     string
	Duration int
}

// String renders the label as sent to the oracle.
func (l TaskLabel) String() string {
	if l.Duration > 0 {
		return l.Name + ": " + strconv.Itoa(l.Duration) + " minutes"
	}
	return l.Name
}

// Request is the input of one day assignment.
type Request struct {
	UserID   string
	Tasks    []TaskLabel
	Location *time.Location
	Window   model.DayWindow
	Now      time.Time
	Buffer   *model.BufferTimeConfig
	// StartOfDay, when set, asks the oracle not to place anything earlier.
	StartOfDay *time.Time
}

// Schedule is the validated oracle answer for one day window.
type Schedule struct {
	Window model.DayWindow
	Slots  []Slot
	// Unscheduled lists task names the oracle did not place.
	Unscheduled []string

	byTask map[string]int
}

// Lookup finds the slot for a task name, case-insensitively.
func (s Schedule) Lookup(name string) (Slot, bool) {
	i, ok := s.byTask[normalize(name)]
	if !ok {
		return Slot{}, false
	}
	return s.Slots[i], true
}

// Assigner is the DayScheduleAssigner.
type Assigner struct {
	oracle Oracle
	events EventLister
}

func NewAssigner(oracle Oracle, events EventLister) *Assigner {
	return &Assigner{oracle: oracle, events: events}
}

// Assign plans req.Tasks inside req.Window. It fails with an
// *OracleParseError when the reply breaks the contract; tasks the oracle
// omitted are reported in Schedule.Unscheduled rather than dropped silently.
func (a *Assigner) Assign(ctx context.Context, req Request) (Schedule, error) {
	if len(req.Tasks) == 0 {
		return Schedule{Window: req.Window}, nil
	}
	loc := req.Location
	if loc == nil {
		loc = req.Window.Start.Location()
	}

	existing, err := a.events.ListEvents(ctx, req.UserID, req.Window.Start, req.Window.End)
	if err != nil {
		return Schedule{}, fmt.Errorf("dayplan: list existing events: %w", err)
	}

	prompt, err := renderPrompt(req, loc, existing)
	if err != nil {
		return Schedule{}, err
	}

	reply, err := a.oracle.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return Schedule{}, fmt.Errorf("dayplan: oracle: %w", err)
	}

	slots, err := Parse(reply)
	if err != nil {
		return Schedule{}, err
	}

	sched := Schedule{Window: req.Window, Slots: slots, byTask: make(map[string]int, len(slots))}
	for i, s := range slots {
		sched.byTask[normalize(s.Task)] = i
	}
	// Oracles sometimes echo the full label ("Read: 30 minutes").
	for _, t := range req.Tasks {
		key := normalize(t.Name)
		if _, ok := sched.byTask[key]; ok {
			continue
		}
		if i, ok := sched.byTask[normalize(t.String())]; ok {
			sched.byTask[key] = i
			continue
		}
		sched.Unscheduled = append(sched.Unscheduled, t.Name)
	}

	if len(sched.Unscheduled) > 0 {
		appLog.Warn("oracle schedule omitted tasks", ErrUnscheduledTask,
			"user_id", req.UserID,
			"date", req.Window.Start.Format(time.DateOnly),
			"tasks", strings.Join(sched.Unscheduled, ","),
		)
	}
	return sched, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

const systemPrompt = `You are a day planner. Place every task from the task list into the user's work hours without overlapping existing events or each other.
Reply with a single JSON array and nothing else. Each element must be an object with exactly these keys:
"start_time" (e.g. "9:00 am"), "end_time" (e.g. "9:30 am") and "task" (the task name exactly as given, without the duration).`

var promptTemplate = template.Must(template.New("dayplan").Parse(
	`Current time: {{.Now}}
Timezone: {{.Timezone}}
Date: {{.Date}}
Work hours: {{.WorkStart}} - {{.WorkEnd}}
{{- if .StartOfDay}}
Do not schedule anything before {{.StartOfDay}}.
{{- end}}
{{- if .BufferBefore}}
Leave {{.BufferBefore}} minutes free before each task.
{{- end}}
{{- if .BufferAfter}}
Leave {{.BufferAfter}} minutes free after each task.
{{- end}}

Tasks:
{{- range .Tasks}}
- {{.}}
{{- end}}

Existing events:
{{- range .Existing}}
- {{.}}
{{- else}}
- none
{{- end}}
`))

type promptData struct {
	Now          string
	Timezone     string
	Date         string
	WorkStart    string
	WorkEnd      string
	StartOfDay   string
	BufferBefore int
	BufferAfter  int
	Tasks        []string
	Existing     []string
}

const clockLayout = "3:04 pm"

func renderPrompt(req Request, loc *time.Location, existing []model.CalendarEvent) (string, error) {
	data := promptData{
		Now:       req.Now.In(loc).Format("Monday, 2006-01-02T15:04:05Z07:00"),
		Timezone:  loc.String(),
		Date:      req.Window.Start.In(loc).Format("Monday, 2006-01-02"),
		WorkStart: req.Window.Start.In(loc).Format(clockLayout),
		WorkEnd:   req.Window.End.In(loc).Format(clockLayout),
	}
	if req.StartOfDay != nil {
		sod := req.StartOfDay.In(loc)
		ws := req.Window.Start.In(loc)
		// Only meaningful when it is later than the start of work.
		if sod.Hour()*60+sod.Minute() > ws.Hour()*60+ws.Minute() {
			data.StartOfDay = sod.Format(clockLayout)
		}
	}
	if req.Buffer != nil {
		data.BufferBefore = req.Buffer.BeforeEvent
		data.BufferAfter = req.Buffer.AfterEvent
	}
	for _, t := range req.Tasks {
		data.Tasks = append(data.Tasks, t.String())
	}
	for _, ev := range existing {
		data.Existing = append(data.Existing, fmt.Sprintf("%s: %s - %s",
			ev.Summary, ev.StartDate.In(loc).Format(clockLayout), ev.EndDate.In(loc).Format(clockLayout)))
	}

	var b strings.Builder
	if err := promptTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("dayplan: render prompt: %w", err)
	}
	return b.String(), nil
}
