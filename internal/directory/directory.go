// Package directory serves per-user settings that the scheduling pipeline
// consumes but does not compute: work hours, the default calendar and the
// calendar integration client type.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskcal/internal/config"
	"taskcal/internal/model"
)

// ErrUnknownUser is returned for users missing from the directory.
var ErrUnknownUser = errors.New("directory: unknown user")

type user struct {
	timezone    string
	hours       model.WorkHours
	calendar    *model.Calendar
	integration *model.CalendarIntegration
}

// Directory is an immutable, config-backed user directory.
type Directory struct {
	users map[string]user
}

// FromConfig builds a Directory from the users section. resource is the
// configured provider resource name; user calendars without an explicit
// resource inherit it.
func FromConfig(users []config.UserConfig, resource string) (*Directory, error) {
	d := &Directory{users: make(map[string]user, len(users))}
	for _, uc := range users {
		hours := make(model.WorkHours, len(uc.WorkHours))
		for name, h := range uc.WorkHours {
			day, err := model.ParseWeekday(name)
			if err != nil {
				return nil, fmt.Errorf("directory: user %q: %w", uc.ID, err)
			}
			hours[day] = h
		}

		u := user{timezone: uc.Timezone, hours: hours}
		if uc.Calendar != nil {
			cal := *uc.Calendar
			cal.UserID = uc.ID
			if cal.Resource == "" {
				cal.Resource = resource
			}
			u.calendar = &cal
		}
		if uc.ClientType != "" {
			u.integration = &model.CalendarIntegration{
				UserID:     uc.ID,
				Resource:   resource,
				ClientType: uc.ClientType,
			}
		}
		d.users[uc.ID] = u
	}
	return d, nil
}

// WorkHours returns the user's configured hours. Hours are wall-clock values
// and apply in whatever location the caller projects them into.
func (d *Directory) WorkHours(_ context.Context, userID string, _ *time.Location) (model.WorkHours, error) {
	u, ok := d.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	out := make(model.WorkHours, len(u.hours))
	for k, v := range u.hours {
		out[k] = v
	}
	return out, nil
}

// DefaultCalendar returns the user's default calendar or nil if none is
// configured.
func (d *Directory) DefaultCalendar(_ context.Context, userID string) (*model.Calendar, error) {
	u, ok := d.users[userID]
	if !ok || u.calendar == nil {
		return nil, nil
	}
	cal := *u.calendar
	return &cal, nil
}

// Integration returns the user's calendar integration or nil.
func (d *Directory) Integration(_ context.Context, userID string) (*model.CalendarIntegration, error) {
	u, ok := d.users[userID]
	if !ok || u.integration == nil {
		return nil, nil
	}
	in := *u.integration
	return &in, nil
}

// Timezone returns the user's configured timezone, or "" when unset.
func (d *Directory) Timezone(userID string) string {
	return d.users[userID].timezone
}
