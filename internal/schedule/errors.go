package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

// Class groups failures by how far they reach.
type Class string

const (
	// ClassItem aborts one occurrence or one task; siblings proceed.
	ClassItem Class = "item"
	// ClassRun aborts the whole run.
	ClassRun Class = "run"
	// ClassEnrichment is a best-effort side effect that failed; the event
	// it belongs to is still persisted.
	ClassEnrichment Class = "enrichment"
)

// Failure describes one thing that went wrong during a run.
type Failure struct {
	Class      Class
	Stage      string
	Task       string
	Occurrence *time.Time
	Err        error
}

func (f Failure) Error() string {
	msg := fmt.Sprintf("%s/%s", f.Class, f.Stage)
	if f.Task != "" {
		msg += " task=" + f.Task
	}
	if f.Occurrence != nil {
		msg += " occurrence=" + f.Occurrence.Format(time.DateOnly)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f Failure) Unwrap() error { return f.Err }

func (f Failure) MarshalJSON() ([]byte, error) {
	out := struct {
		Class      Class      `json:"class"`
		Stage      string     `json:"stage"`
		Task       string     `json:"task,omitempty"`
		Occurrence *time.Time `json:"occurrence,omitempty"`
		Error      string     `json:"error,omitempty"`
	}{Class: f.Class, Stage: f.Stage, Task: f.Task, Occurrence: f.Occurrence}
	if f.Err != nil {
		out.Error = f.Err.Error()
	}
	return json.Marshal(out)
}

// RunError is returned when a run-class failure aborts the orchestration.
type RunError struct {
	Stage string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("schedule: run aborted at %s: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
