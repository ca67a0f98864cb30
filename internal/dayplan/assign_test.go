package dayplan

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"taskcal/internal/model"
)

type fakeOracle struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeOracle) Complete(_ context.Context, _, user string) (string, error) {
	f.prompts = append(f.prompts, user)
	return f.reply, f.err
}

type fakeEvents struct {
	events []model.CalendarEvent
	calls  int
}

func (f *fakeEvents) ListEvents(context.Context, string, time.Time, time.Time) ([]model.CalendarEvent, error) {
	f.calls++
	return f.events, nil
}

func window() model.DayWindow {
	return model.DayWindow{
		Start: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC),
	}
}

func TestAssign_MatchesTasksAndRendersPrompt(t *testing.T) {
	oracle := &fakeOracle{reply: `[{"start_time":"9:00 am","end_time":"9:30 am","task":"exercise"},` +
		`{"start_time":"10:00 am","end_time":"10:45 am","task":"Read: 45 minutes"}]`}
	events := &fakeEvents{events: []model.CalendarEvent{{
		Summary:   "Standup",
		StartDate: time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}}}
	a := NewAssigner(oracle, events)

	startOfDay := time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)
	sched, err := a.Assign(context.Background(), Request{
		UserID:     "u1",
		Tasks:      []TaskLabel{{Name: "Exercise"}, {Name: "Read", Duration: 45}},
		Location:   time.UTC,
		Window:     window(),
		Now:        time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC),
		Buffer:     &model.BufferTimeConfig{BeforeEvent: 10},
		StartOfDay: &startOfDay,
	})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if len(sched.Unscheduled) != 0 {
		t.Errorf("unexpected unscheduled tasks: %v", sched.Unscheduled)
	}
	if s, ok := sched.Lookup("Exercise"); !ok || s.Minutes() != 30 {
		t.Errorf("Exercise lookup = %+v, %v", s, ok)
	}
	if s, ok := sched.Lookup("read"); !ok || s.Minutes() != 45 {
		t.Errorf("Read lookup = %+v, %v", s, ok)
	}

	if len(oracle.prompts) != 1 {
		t.Fatalf("expected 1 oracle call, got %d", len(oracle.prompts))
	}
	prompt := oracle.prompts[0]
	for _, want := range []string{
		"Work hours: 8:00 am - 6:00 pm",
		"Do not schedule anything before 8:30 am.",
		"Leave 10 minutes free before each task.",
		"- Exercise",
		"- Read: 45 minutes",
		"- Standup: 9:30 am - 10:00 am",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "free after each task") {
		t.Errorf("prompt mentions an after buffer that was not requested")
	}
}

func TestAssign_ReportsOmittedTasks(t *testing.T) {
	oracle := &fakeOracle{reply: `[{"start_time":"9:00 am","end_time":"9:30 am","task":"Exercise"}]`}
	a := NewAssigner(oracle, &fakeEvents{})

	sched, err := a.Assign(context.Background(), Request{
		UserID: "u1",
		Tasks:  []TaskLabel{{Name: "Exercise"}, {Name: "Meditate"}},
		Window: window(),
		Now:    window().Start,
	})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if len(sched.Unscheduled) != 1 || sched.Unscheduled[0] != "Meditate" {
		t.Errorf("Unscheduled = %v, want [Meditate]", sched.Unscheduled)
	}
	if _, ok := sched.Lookup("Meditate"); ok {
		t.Error("omitted task must not resolve to a slot")
	}
}

func TestAssign_ParseFailure(t *testing.T) {
	a := NewAssigner(&fakeOracle{reply: "no plan today"}, &fakeEvents{})
	_, err := a.Assign(context.Background(), Request{
		UserID: "u1",
		Tasks:  []TaskLabel{{Name: "Exercise"}},
		Window: window(),
	})
	var perr *OracleParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *OracleParseError, got %v", err)
	}
}

func TestAssign_OracleError(t *testing.T) {
	boom := errors.New("boom")
	a := NewAssigner(&fakeOracle{err: boom}, &fakeEvents{})
	_, err := a.Assign(context.Background(), Request{
		UserID: "u1",
		Tasks:  []TaskLabel{{Name: "Exercise"}},
		Window: window(),
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped oracle error, got %v", err)
	}
}

func TestAssign_NoTasksSkipsOracle(t *testing.T) {
	oracle := &fakeOracle{}
	events := &fakeEvents{}
	sched, err := NewAssigner(oracle, events).Assign(context.Background(), Request{UserID: "u1", Window: window()})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if len(sched.Slots) != 0 || len(oracle.prompts) != 0 || events.calls != 0 {
		t.Errorf("expected no work, got slots=%d prompts=%d lists=%d", len(sched.Slots), len(oracle.prompts), events.calls)
	}
}

func TestTaskLabelString(t *testing.T) {
	if got := (TaskLabel{Name: "Read", Duration: 20}).String(); got != "Read: 20 minutes" {
		t.Errorf("got %q", got)
	}
	if got := (TaskLabel{Name: "Read"}).String(); got != "Read" {
		t.Errorf("got %q", got)
	}
}
