package dayplan

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"taskcal/internal/model"
)

// OracleParseError reports an oracle reply that does not match the
// `[{"start_time","end_time","task"}]` contract.
type OracleParseError struct {
	Reason string
	Reply  string
	Err    error
}

func (e *OracleParseError) Error() string {
	msg := "dayplan: oracle reply rejected: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OracleParseError) Unwrap() error { return e.Err }

// Slot is one task placement returned by the oracle. Times are wall-clock
// values on the window's date.
type Slot struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Task      string `json:"task"`

	start model.ClockTime
	end   model.ClockTime
}

// Start returns the parsed start time of day.
func (s Slot) Start() model.ClockTime { return s.start }

// End returns the parsed end time of day.
func (s Slot) End() model.ClockTime { return s.end }

// Minutes is the slot length.
func (s Slot) Minutes() int {
	return s.end.Minutes() - s.start.Minutes()
}

// Bounds projects the slot onto day's calendar date in loc.
func (s Slot) Bounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	return s.start.On(day, loc), s.end.On(day, loc)
}

// Parse extracts the JSON array between the first '[' and the last ']' of
// reply and validates every entry strictly: unknown fields, empty tasks,
// unparseable clock times and non-positive spans are all rejected.
func Parse(reply string) ([]Slot, error) {
	i := strings.Index(reply, "[")
	j := strings.LastIndex(reply, "]")
	if i < 0 || j < i {
		return nil, &OracleParseError{Reason: "no JSON array in reply", Reply: reply}
	}

	dec := json.NewDecoder(strings.NewReader(reply[i : j+1]))
	dec.DisallowUnknownFields()

	var slots []Slot
	if err := dec.Decode(&slots); err != nil {
		return nil, &OracleParseError{Reason: "invalid JSON", Reply: reply, Err: err}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, &OracleParseError{Reason: "trailing data after array", Reply: reply}
	}

	for k := range slots {
		s := &slots[k]
		s.Task = strings.TrimSpace(s.Task)
		if s.Task == "" {
			return nil, &OracleParseError{Reason: fmt.Sprintf("entry %d has no task", k), Reply: reply}
		}
		var err error
		if s.start, err = model.ParseClock(s.StartTime); err != nil {
			return nil, &OracleParseError{Reason: fmt.Sprintf("entry %d start_time", k), Reply: reply, Err: err}
		}
		if s.end, err = model.ParseClock(s.EndTime); err != nil {
			return nil, &OracleParseError{Reason: fmt.Sprintf("entry %d end_time", k), Reply: reply, Err: err}
		}
		if s.Minutes() <= 0 {
			return nil, &OracleParseError{Reason: fmt.Sprintf("entry %d (%s) ends before it starts", k, s.Task), Reply: reply}
		}
	}
	return slots, nil
}
