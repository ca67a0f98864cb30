package recurrence

import (
	"fmt"

	"github.com/teambition/rrule-go"

	"taskcal/internal/model"
)

// RuleString renders r as an iCalendar recurrence line ("RRULE:FREQ=...").
// A nil rule or a rule without a frequency renders as "".
func RuleString(r *model.RecurrenceRule) (string, error) {
	if r == nil || r.Frequency == "" {
		return "", nil
	}
	if err := r.Validate(); err != nil {
		return "", err
	}

	freq, err := Frequency(r.Frequency)
	if err != nil {
		return "", err
	}
	interval := r.Interval
	if interval <= 0 {
		interval = 1
	}

	// Dtstart stays zero so String() emits only the RRULE value.
	opt := rrule.ROption{
		Freq:       freq,
		Interval:   interval,
		Count:      r.Occurrence,
		Bymonthday: r.ByMonthDay,
	}
	if r.EndDate != nil {
		opt.Until = r.EndDate.UTC()
	}
	if opt.Byweekday, err = Weekdays(r.ByWeekDay); err != nil {
		return "", err
	}

	// Round-trip through the parser so malformed combinations surface here
	// rather than at the provider.
	value := opt.String()
	if _, err := rrule.StrToROption(value); err != nil {
		return "", fmt.Errorf("recurrence: invalid rule %q: %w", value, err)
	}
	return "RRULE:" + value, nil
}
