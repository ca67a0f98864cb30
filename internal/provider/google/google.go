// Package google creates events through the Google Calendar API.
package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	appLog "taskcal/internal/log"
	"taskcal/internal/provider"
)

// Provider implements provider.Provider on top of calendar/v3.
type Provider struct {
	svc *calendar.Service
}

// New creates a Provider authenticated with a service-account credentials
// file. Extra options (endpoint, HTTP client) are appended, mostly for tests.
func New(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*Provider, error) {
	all := make([]option.ClientOption, 0, len(opts)+2)
	if credentialsFile != "" {
		all = append(all, option.WithCredentialsFile(credentialsFile), option.WithScopes(calendar.CalendarScope))
	}
	all = append(all, opts...)

	svc, err := calendar.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("google: create calendar service: %w", err)
	}
	return &Provider{svc: svc}, nil
}

// CreateEvent inserts the event and returns Google's event ID.
func (p *Provider) CreateEvent(ctx context.Context, req provider.EventRequest) (string, error) {
	if req.CalendarID == "" {
		return "", errors.New("google: calendar ID is empty")
	}

	end := req.End
	if req.AllDay {
		end = provider.AllDayEnd(req.Start, req.End)
	}

	ev := &calendar.Event{
		Id:           req.EventID,
		Summary:      req.Title,
		Description:  req.Description,
		Location:     req.Location,
		Recurrence:   req.Recurrence,
		Transparency: string(req.Transparency),
		Visibility:   string(req.Visibility),
		ColorId:      req.ColorID,
		Start:        eventTime(req.Start, req.AllDay, req.Timezone),
		End:          eventTime(end, req.AllDay, req.Timezone),
	}
	if req.ClientType != "" {
		ev.ExtendedProperties = &calendar.EventExtendedProperties{
			Private: map[string]string{"clientType": req.ClientType},
		}
	}
	if len(req.Reminders) > 0 {
		method := req.ReminderMethod
		if method == "" {
			method = "email"
		}
		overrides := make([]*calendar.EventReminder, 0, len(req.Reminders))
		for _, m := range req.Reminders {
			overrides = append(overrides, &calendar.EventReminder{Method: method, Minutes: int64(m)})
		}
		ev.Reminders = &calendar.EventReminders{
			UseDefault: false,
			Overrides:  overrides,
			// UseDefault=false is the zero value and would otherwise be omitted.
			ForceSendFields: []string{"UseDefault"},
		}
	}

	created, err := p.svc.Events.Insert(req.CalendarID, ev).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("google: insert event: %w", err)
	}

	appLog.Debug("google event created", "user_id", req.UserID, "calendar_id", req.CalendarID, "event_id", created.Id)
	return created.Id, nil
}

func eventTime(t time.Time, allDay bool, tz string) *calendar.EventDateTime {
	if allDay {
		return &calendar.EventDateTime{Date: provider.DateOnly(t)}
	}
	return &calendar.EventDateTime{
		DateTime: t.Format(time.RFC3339),
		TimeZone: tz,
	}
}
