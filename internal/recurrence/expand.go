// Package recurrence turns recurrence rules into concrete per-day work
// windows and renders rules as iCalendar RRULE strings.
package recurrence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "taskcal/internal/log"
	"taskcal/internal/model"
)

const defaultMaxOccurrences = 500

// ErrNoViableWindows is returned when no occurrence lands on a weekday with
// configured work hours. The rest of the pipeline cannot proceed without at
// least one window.
var ErrNoViableWindows = errors.New("recurrence: no viable day windows")

// WorkHoursSource resolves a user's per-weekday work hours.
type WorkHoursSource interface {
	WorkHours(ctx context.Context, userID string, loc *time.Location) (model.WorkHours, error)
}

// ExpandInput describes one expansion.
type ExpandInput struct {
	UserID   string
	Start    time.Time
	Until    time.Time
	Location *time.Location

	Frequency model.Frequency
	Interval  int
	// Count, when positive, also terminates the rule.
	Count      int
	ByWeekDay  []string
	ByMonthDay []int
}

// Expander is the RecurrenceExpander.
type Expander struct {
	hours          WorkHoursSource
	maxOccurrences int
}

// NewExpander creates an Expander. maxOccurrences <= 0 uses the default cap.
func NewExpander(hours WorkHoursSource, maxOccurrences int) *Expander {
	if maxOccurrences <= 0 {
		maxOccurrences = defaultMaxOccurrences
	}
	return &Expander{hours: hours, maxOccurrences: maxOccurrences}
}

// Expand enumerates occurrence instants between in.Start and in.Until and
// projects each onto that weekday's work hours. When the rule yields no
// instant at all, a single occurrence at in.Start is used instead.
//
// The returned windows are ordered by start time and are never empty; when
// nothing can be placed ErrNoViableWindows is returned.
func (e *Expander) Expand(ctx context.Context, in ExpandInput) ([]model.DayWindow, error) {
	loc := in.Location
	if loc == nil {
		loc = in.Start.Location()
	}

	instants, err := e.instants(in, loc)
	if err != nil {
		return nil, err
	}
	if len(instants) == 0 {
		appLog.Debug("recurrence yielded no instants; falling back to start", "user_id", in.UserID, "start", in.Start)
		instants = []time.Time{in.Start.In(loc)}
	}

	hours, err := e.hours.WorkHours(ctx, in.UserID, loc)
	if err != nil {
		return nil, fmt.Errorf("recurrence: work hours for %s: %w", in.UserID, err)
	}

	windows := make([]model.DayWindow, 0, len(instants))
	for _, t := range instants {
		local := t.In(loc)
		h, ok := hours[local.Weekday()]
		if !ok {
			appLog.Debug("no work hours on weekday; skipping occurrence", "user_id", in.UserID, "date", local.Format(time.DateOnly))
			continue
		}
		windows = append(windows, model.DayWindow{
			Start: h.Start.On(local, loc),
			End:   h.End.On(local, loc),
		})
	}

	if len(windows) == 0 {
		return nil, ErrNoViableWindows
	}
	return windows, nil
}

func (e *Expander) instants(in ExpandInput, loc *time.Location) ([]time.Time, error) {
	freq, err := Frequency(in.Frequency)
	if err != nil {
		return nil, err
	}
	interval := in.Interval
	if interval <= 0 {
		interval = 1
	}

	opt := rrule.ROption{
		Freq:     freq,
		Interval: interval,
		Dtstart:  in.Start.In(loc),
		Count:    in.Count,
	}
	if !in.Until.IsZero() {
		opt.Until = in.Until.In(loc)
	}
	if opt.Count <= 0 && opt.Until.IsZero() {
		// Unterminated rules are capped rather than enumerated forever.
		opt.Count = e.maxOccurrences
	}
	if opt.Byweekday, err = Weekdays(in.ByWeekDay); err != nil {
		return nil, err
	}
	if len(in.ByMonthDay) > 0 {
		opt.Bymonthday = in.ByMonthDay
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("recurrence: build rule: %w", err)
	}

	all := r.All()
	if len(all) > e.maxOccurrences {
		appLog.Error("recurrence: truncated occurrences due to cap",
			errors.New("max occurrences reached"),
			"user_id", in.UserID,
			"cap", e.maxOccurrences,
		)
		all = all[:e.maxOccurrences]
	}
	return all, nil
}

// Frequency maps a model frequency onto rrule-go's. Empty means daily.
func Frequency(f model.Frequency) (rrule.Frequency, error) {
	switch f {
	case model.FrequencyDaily, "":
		return rrule.DAILY, nil
	case model.FrequencyWeekly:
		return rrule.WEEKLY, nil
	case model.FrequencyMonthly:
		return rrule.MONTHLY, nil
	case model.FrequencyYearly:
		return rrule.YEARLY, nil
	}
	return 0, fmt.Errorf("recurrence: unknown frequency %q", f)
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// Weekdays converts "MO".."SU" codes into rrule weekdays.
func Weekdays(codes []string) ([]rrule.Weekday, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	out := make([]rrule.Weekday, 0, len(codes))
	for _, c := range codes {
		d, err := model.ParseWeekday(c)
		if err != nil {
			return nil, fmt.Errorf("recurrence: %w", err)
		}
		out = append(out, rruleWeekdays[d])
	}
	return out, nil
}
