package model

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusTodo  TaskStatus = "todo"
	TaskStatusDoing TaskStatus = "doing"
	TaskStatusDone  TaskStatus = "done"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusDoing, TaskStatusDone:
		return true
	}
	return false
}

// Task is a persisted to-do item. Tasks are created by the scheduling
// pipeline and never deleted by it.
type Task struct {
	ID     string `json:"id" firestore:"id"`
	UserID string `json:"userId" firestore:"userId"`

	// EventID links the task to the event created alongside it (single path).
	EventID string `json:"eventId,omitempty" firestore:"eventId,omitempty"`

	// Type is the list/category name, e.g. "Master", "Daily".
	Type      string     `json:"type" firestore:"type"`
	Notes     string     `json:"notes" firestore:"notes"`
	Important bool       `json:"important,omitempty" firestore:"important"`
	Status    TaskStatus `json:"status" firestore:"status"`
	Priority  int        `json:"priority" firestore:"priority"`

	SoftDeadline *time.Time `json:"softDeadline,omitempty" firestore:"softDeadline,omitempty"`
	HardDeadline *time.Time `json:"hardDeadline,omitempty" firestore:"hardDeadline,omitempty"`

	// Duration in minutes; zero means unspecified.
	Duration int `json:"duration,omitempty" firestore:"duration,omitempty"`

	CreatedDate time.Time `json:"createdDate" firestore:"createdDate"`
	UpdatedAt   time.Time `json:"updatedAt" firestore:"updatedAt"`
}
