// Package icsfile is an offline calendar provider that keeps one iCalendar
// file per (user, calendar) on disk. It is used for local runs and for
// users without an online calendar account.
package icsfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "taskcal/internal/log"
	"taskcal/internal/provider"
)

const productID = "-//taskcal//scheduler//EN"

// Provider implements provider.Provider by appending VEVENTs to .ics files.
type Provider struct {
	dir   string
	clock func() time.Time

	mu sync.Mutex
}

// New creates a Provider rooted at dir.
func New(dir string, clock func() time.Time) (*Provider, error) {
	if dir == "" {
		return nil, errors.New("icsfile: dir is empty")
	}
	if clock == nil {
		clock = time.Now
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Provider{dir: dir, clock: clock}, nil
}

// Path returns the file backing a user's calendar.
func (p *Provider) Path(userID, calendarID string) string {
	return filepath.Join(p.dir, safeName(userID), safeName(calendarID)+".ics")
}

// CreateEvent appends a VEVENT and returns its UID.
func (p *Provider) CreateEvent(ctx context.Context, req provider.EventRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.UserID == "" || req.CalendarID == "" {
		return "", errors.New("icsfile: user and calendar IDs are required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	path := p.Path(req.UserID, req.CalendarID)
	cal, err := loadCalendar(path)
	if err != nil {
		return "", err
	}

	uid := req.EventID
	if uid == "" {
		uid = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	for _, existing := range cal.Events() {
		if existing.Id() == uid {
			return "", fmt.Errorf("icsfile: event %s already exists", uid)
		}
	}

	now := p.clock().UTC()
	ev := cal.AddEvent(uid)
	ev.SetCreatedTime(now)
	ev.SetDtStampTime(now)
	ev.SetModifiedAt(now)
	ev.SetSummary(req.Title)
	if req.Description != "" {
		ev.SetDescription(req.Description)
	}
	if req.Location != "" {
		ev.SetLocation(req.Location)
	}

	if req.AllDay {
		dateParam := &ical.KeyValues{Key: "VALUE", Value: []string{"DATE"}}
		ev.SetProperty(ical.ComponentPropertyDtStart, req.Start.Format("20060102"), dateParam)
		ev.SetProperty(ical.ComponentPropertyDtEnd, provider.AllDayEnd(req.Start, req.End).Format("20060102"), dateParam)
	} else {
		ev.SetStartAt(req.Start)
		ev.SetEndAt(req.End)
	}

	for _, line := range req.Recurrence {
		if v, ok := strings.CutPrefix(line, "RRULE:"); ok {
			ev.AddProperty(ical.ComponentPropertyRrule, v)
		}
	}
	if req.Transparency != "" {
		ev.SetProperty(ical.ComponentProperty("TRANSP"), strings.ToUpper(string(req.Transparency)))
	}
	if req.Visibility != "" && req.Visibility != "default" {
		ev.SetProperty(ical.ComponentProperty("CLASS"), strings.ToUpper(string(req.Visibility)))
	}
	if req.ClientType != "" {
		ev.SetProperty(ical.ComponentProperty("X-TASKCAL-CLIENT-TYPE"), req.ClientType)
	}
	for _, m := range req.Reminders {
		alarm := ev.AddAlarm()
		alarm.SetAction(ical.ActionDisplay)
		alarm.SetTrigger("-PT" + strconv.Itoa(m) + "M")
		alarm.SetProperty(ical.ComponentPropertyDescription, req.Title)
	}

	if err := writeCalendar(path, cal); err != nil {
		return "", err
	}

	appLog.Debug("ics event written", "user_id", req.UserID, "calendar_id", req.CalendarID, "uid", uid)
	return uid, nil
}

// Event is the subset of a stored VEVENT that callers read back.
type Event struct {
	UID        string
	Summary    string
	Location   string
	Start      time.Time
	End        time.Time
	RawRRule   string
	AlarmCount int
}

// Events reads back every VEVENT of a user's calendar.
func (p *Provider) Events(userID, calendarID string) ([]Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cal, err := loadCalendar(p.Path(userID, calendarID))
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev := Event{
			UID:        ve.Id(),
			AlarmCount: len(ve.Alarms()),
		}
		if prop := ve.GetProperty(ical.ComponentPropertySummary); prop != nil {
			ev.Summary = prop.Value
		}
		if prop := ve.GetProperty(ical.ComponentPropertyLocation); prop != nil {
			ev.Location = prop.Value
		}
		if prop := ve.GetProperty(ical.ComponentPropertyRrule); prop != nil {
			ev.RawRRule = prop.Value
		}
		ev.Start, _ = ve.GetStartAt()
		ev.End, _ = ve.GetEndAt()
		out = append(out, ev)
	}
	return out, nil
}

func loadCalendar(path string) (*ical.Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cal := ical.NewCalendar()
			cal.SetProductId(productID)
			cal.SetMethod(ical.MethodPublish)
			return cal, nil
		}
		return nil, err
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("icsfile: parse %s: %w", path, err)
	}
	return cal, nil
}

// writeCalendar writes atomically via a temp file + rename.
func writeCalendar(path string, cal *ical.Calendar) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".calendar-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(cal.Serialize()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.', r == '@':
			return r
		}
		return '_'
	}, s)
}
