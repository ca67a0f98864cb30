package model

import "time"

// BufferTimeConfig pads a primary event with transition time. A zero value
// for either side means no buffer on that side.
type BufferTimeConfig struct {
	BeforeEvent int `json:"beforeEvent,omitempty" binding:"gte=0"`
	AfterEvent  int `json:"afterEvent,omitempty" binding:"gte=0"`
}

// Empty reports whether no padding is requested.
func (b *BufferTimeConfig) Empty() bool {
	return b == nil || (b.BeforeEvent <= 0 && b.AfterEvent <= 0)
}

// TimeRange is a time-of-day span such as "09:00"-"11:30".
type TimeRange struct {
	StartTime string `json:"startTime" binding:"required"`
	EndTime   string `json:"endTime" binding:"required"`
}

// TimePreference is an optional weekday qualifier plus a time range.
type TimePreference struct {
	DayOfWeek []string  `json:"dayOfWeek,omitempty" binding:"dive,oneof=MO TU WE TH FR SA SU"`
	TimeRange TimeRange `json:"timeRange"`
}

// TaskItem is one entry of a task list attached to a deadline.
type TaskItem struct {
	Task     string     `json:"task" binding:"required"`
	Duration int        `json:"duration,omitempty" binding:"gte=0"`
	ListName string     `json:"tasklistName,omitempty"`
	Status   TaskStatus `json:"status,omitempty" binding:"omitempty,oneof=todo doing done"`
}

const (
	DeadlineSoft = "softDeadline"
	DeadlineHard = "hardDeadline"
)

// AddTaskRequest is the single input of the scheduling pipeline.
type AddTaskRequest struct {
	UserID   string `json:"userId" binding:"required"`
	// Timezone falls back to the user's configured zone when empty.
	Timezone string `json:"timezone,omitempty"`
	Title    string `json:"title" binding:"required"`

	// Duration in minutes for the single-occurrence path.
	Duration int `json:"duration,omitempty" binding:"gte=0"`

	StartDate    *time.Time `json:"startDate,omitempty"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	DeadlineType string     `json:"deadlineType,omitempty" binding:"omitempty,oneof=softDeadline hardDeadline"`

	TaskList []TaskItem `json:"taskList,omitempty" binding:"dive"`

	Priority        int               `json:"priority,omitempty" binding:"gte=0"`
	Reminders       []int             `json:"reminders,omitempty" binding:"dive,gte=0"`
	TimePreferences []TimePreference  `json:"timePreferences,omitempty" binding:"dive"`
	BufferTime      *BufferTimeConfig `json:"bufferTime,omitempty"`

	Transparency Transparency `json:"transparency,omitempty" binding:"omitempty,oneof=opaque transparent"`
	Visibility   Visibility   `json:"visibility,omitempty" binding:"omitempty,oneof=default public private confidential"`
	Location     string       `json:"location,omitempty"`
	AllDay       bool         `json:"allDay,omitempty"`

	Recur *RecurrenceRule `json:"recur,omitempty"`

	// CurrentTime is the user's "now"; the server clock is used when absent.
	CurrentTime *time.Time `json:"currentTime,omitempty"`
}
