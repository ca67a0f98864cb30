package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// RecurrenceRule is the structured form of an RFC 5545 RRULE as received
// from the caller. At most one of Occurrence / EndDate terminates the rule;
// when both are absent the pipeline derives an end from the due date.
type RecurrenceRule struct {
	Frequency  Frequency  `json:"frequency,omitempty" binding:"omitempty,oneof=daily weekly monthly yearly"`
	Interval   int        `json:"interval,omitempty" binding:"gte=0"`
	ByWeekDay  []string   `json:"byWeekDay,omitempty" binding:"dive,oneof=MO TU WE TH FR SA SU"`
	ByMonthDay []int      `json:"byMonthDay,omitempty" binding:"dive,min=-31,max=31"`
	Occurrence int        `json:"occurrence,omitempty" binding:"gte=0"`
	EndDate    *time.Time `json:"endDate,omitempty"`
}

// Validate checks the invariant that a rule is terminated by count or end
// date, not both.
func (r *RecurrenceRule) Validate() error {
	if r == nil {
		return nil
	}
	if r.Occurrence > 0 && r.EndDate != nil {
		return errors.New("recurrence: occurrence count and end date are mutually exclusive")
	}
	if r.Interval < 0 {
		return fmt.Errorf("recurrence: invalid interval %d", r.Interval)
	}
	return nil
}

// DayWindow is one occurrence of a recurrence, projected onto the user's
// work hours for that weekday.
type DayWindow struct {
	Start time.Time `json:"dayWindowStartDate"`
	End   time.Time `json:"dayWindowEndDate"`
}

// ClockTime is a time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

var clockLayouts = []string{"15:04", "3:04 pm", "3:04pm", "3:04 PM", "3:04PM", "15:04:05"}

// ParseClock accepts "15:04" as well as "3:04 pm" style values.
func ParseClock(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	// time.Parse is case sensitive for AM/PM markers.
	lower := strings.ToLower(s)
	if lower != s {
		return ParseClock(lower)
	}
	return ClockTime{}, fmt.Errorf("invalid time of day %q", s)
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes returns minutes since midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// On projects c onto the calendar date of day, in loc.
func (c ClockTime) On(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Minute, 0, 0, loc)
}

func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ClockTime) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// DayHours is a single weekday's working span.
type DayHours struct {
	Start ClockTime `yaml:"start" json:"start"`
	End   ClockTime `yaml:"end" json:"end"`
}

// WorkHours maps a weekday to its working span. Missing weekdays are days off.
type WorkHours map[time.Weekday]DayHours

var weekdayCodes = map[string]time.Weekday{
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
	"SU": time.Sunday,
}

// ParseWeekday accepts two-letter codes ("MO") and full English names.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) >= 2 {
		if d, ok := weekdayCodes[s[:2]]; ok {
			if len(s) == 2 || strings.HasPrefix(strings.ToUpper(d.String()), s) {
				return d, nil
			}
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// ISOWeekday returns 1 for Monday through 7 for Sunday.
func ISOWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}
