package model

import (
	"strings"
	"time"
)

type Transparency string

const (
	TransparencyOpaque      Transparency = "opaque"
	TransparencyTransparent Transparency = "transparent"
)

type Visibility string

const (
	VisibilityDefault      Visibility = "default"
	VisibilityPublic       Visibility = "public"
	VisibilityPrivate      Visibility = "private"
	VisibilityConfidential Visibility = "confidential"
)

// CalendarEvent is a calendar entry owned by a user. Its ID is the
// composite "<provider event id>#<calendar id>".
//
// Primary events represent a scheduled task occurrence; buffer events
// (IsPreEvent / IsPostEvent) pad a primary event and point back to it via
// ForEventID, while the primary carries PreEventID / PostEventID.
type CalendarEvent struct {
	ID         string `json:"id" firestore:"id"`
	EventID    string `json:"eventId" firestore:"eventId"`
	CalendarID string `json:"calendarId" firestore:"calendarId"`
	UserID     string `json:"userId" firestore:"userId"`

	Title   string `json:"title" firestore:"title"`
	Summary string `json:"summary" firestore:"summary"`
	Notes   string `json:"notes,omitempty" firestore:"notes,omitempty"`

	StartDate time.Time `json:"startDate" firestore:"startDate"`
	EndDate   time.Time `json:"endDate" firestore:"endDate"`
	AllDay    bool      `json:"allDay,omitempty" firestore:"allDay"`
	Timezone  string    `json:"timezone" firestore:"timezone"`
	Duration  int       `json:"duration" firestore:"duration"`

	TaskID         string `json:"taskId,omitempty" firestore:"taskId,omitempty"`
	TaskType       string `json:"taskType,omitempty" firestore:"taskType,omitempty"`
	DailyTaskList  bool   `json:"dailyTaskList" firestore:"dailyTaskList"`
	WeeklyTaskList bool   `json:"weeklyTaskList" firestore:"weeklyTaskList"`
	Priority       int    `json:"priority" firestore:"priority"`

	ColorID         string `json:"colorId,omitempty" firestore:"colorId,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty" firestore:"backgroundColor,omitempty"`

	Transparency Transparency `json:"transparency,omitempty" firestore:"transparency,omitempty"`
	Visibility   Visibility   `json:"visibility,omitempty" firestore:"visibility,omitempty"`
	Location     string       `json:"location,omitempty" firestore:"location,omitempty"`

	// Recurrence holds iCalendar lines such as "RRULE:FREQ=DAILY;INTERVAL=1".
	Recurrence []string `json:"recurrence,omitempty" firestore:"recurrence,omitempty"`
	// Reminders are provider reminder overrides in minutes before start.
	Reminders []int `json:"reminders,omitempty" firestore:"reminders,omitempty"`

	SoftDeadline *time.Time `json:"softDeadline,omitempty" firestore:"softDeadline,omitempty"`
	HardDeadline *time.Time `json:"hardDeadline,omitempty" firestore:"hardDeadline,omitempty"`

	IsPreEvent  bool   `json:"isPreEvent" firestore:"isPreEvent"`
	IsPostEvent bool   `json:"isPostEvent" firestore:"isPostEvent"`
	IsFollowUp  bool   `json:"isFollowUp" firestore:"isFollowUp"`
	ForEventID  string `json:"forEventId,omitempty" firestore:"forEventId,omitempty"`
	PreEventID  string `json:"preEventId,omitempty" firestore:"preEventId,omitempty"`
	PostEventID string `json:"postEventId,omitempty" firestore:"postEventId,omitempty"`

	Modifiable bool   `json:"modifiable" firestore:"modifiable"`
	Method     string `json:"method,omitempty" firestore:"method,omitempty"`

	CreatedDate time.Time `json:"createdDate" firestore:"createdDate"`
	UpdatedAt   time.Time `json:"updatedAt" firestore:"updatedAt"`
	Deleted     bool      `json:"deleted" firestore:"deleted"`
}

// CompositeEventID joins a provider event ID and a calendar ID.
func CompositeEventID(providerEventID, calendarID string) string {
	return providerEventID + "#" + calendarID
}

// SplitEventID is the inverse of CompositeEventID.
func SplitEventID(id string) (providerEventID, calendarID string) {
	i := strings.LastIndex(id, "#")
	if i < 0 {
		return id, ""
	}
	return id[:i], id[i+1:]
}

// IsBuffer reports whether e pads another event.
func (e CalendarEvent) IsBuffer() bool {
	return e.IsPreEvent || e.IsPostEvent
}

// Overlaps reports whether e intersects [start, end).
func (e CalendarEvent) Overlaps(start, end time.Time) bool {
	return e.StartDate.Before(end) && start.Before(e.EndDate)
}

// Reminder is a notification offset attached to an existing event.
type Reminder struct {
	ID         string    `json:"id" firestore:"id"`
	UserID     string    `json:"userId" firestore:"userId"`
	EventID    string    `json:"eventId" firestore:"eventId"`
	Timezone   string    `json:"timezone" firestore:"timezone"`
	Minutes    int       `json:"minutes" firestore:"minutes"`
	UseDefault bool      `json:"useDefault" firestore:"useDefault"`
	Deleted    bool      `json:"deleted" firestore:"deleted"`
	CreatedAt  time.Time `json:"createdDate" firestore:"createdDate"`
	UpdatedAt  time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// PreferredTimeRange records when the user prefers an event to happen.
// DayOfWeek is the ISO weekday (1 = Monday ... 7 = Sunday); nil means any day.
type PreferredTimeRange struct {
	ID        string    `json:"id" firestore:"id"`
	UserID    string    `json:"userId" firestore:"userId"`
	EventID   string    `json:"eventId" firestore:"eventId"`
	DayOfWeek *int      `json:"dayOfWeek,omitempty" firestore:"dayOfWeek,omitempty"`
	StartTime string    `json:"startTime" firestore:"startTime"`
	EndTime   string    `json:"endTime" firestore:"endTime"`
	CreatedAt time.Time `json:"createdDate" firestore:"createdDate"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// Calendar is a user's provider calendar.
type Calendar struct {
	ID              string `json:"id" yaml:"id" firestore:"id"`
	UserID          string `json:"userId" yaml:"-" firestore:"userId"`
	Resource        string `json:"resource" yaml:"resource" firestore:"resource"`
	ColorID         string `json:"colorId,omitempty" yaml:"color_id,omitempty" firestore:"colorId,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty" yaml:"background_color,omitempty" firestore:"backgroundColor,omitempty"`
}

// CalendarIntegration describes how a user is connected to a provider.
type CalendarIntegration struct {
	UserID     string `json:"userId" firestore:"userId"`
	Resource   string `json:"resource" firestore:"resource"`
	ClientType string `json:"clientType" firestore:"clientType"`
}
