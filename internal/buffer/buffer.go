// Package buffer pads primary events with before/after transition events.
package buffer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskcal/internal/model"
	"taskcal/internal/provider"
)

// ErrMissingClientType is returned when the user's calendar integration has
// no client type, which the provider needs to tag buffer events.
var ErrMissingClientType = errors.New("buffer: calendar integration has no client type")

// IntegrationSource resolves a user's calendar integration.
type IntegrationSource interface {
	Integration(ctx context.Context, userID string) (*model.CalendarIntegration, error)
}

// Result is a primary event plus whichever buffers were created for it.
type Result struct {
	Primary model.CalendarEvent
	Before  *model.CalendarEvent
	After   *model.CalendarEvent
}

// Synthesizer is the BufferEventSynthesizer.
type Synthesizer struct {
	provider     provider.Provider
	integrations IntegrationSource
	title        string
	clock        func() time.Time
	newID        func() string
}

func NewSynthesizer(p provider.Provider, integrations IntegrationSource, title string, clock func() time.Time, newID func() string) *Synthesizer {
	if title == "" {
		title = "Buffer time"
	}
	if clock == nil {
		clock = time.Now
	}
	return &Synthesizer{provider: p, integrations: integrations, title: title, clock: clock, newID: newID}
}

// Derive builds the buffer shells for primary without contacting the
// provider. The before buffer ends at the primary start; the after buffer
// begins at the primary end.
func Derive(primary model.CalendarEvent, cfg *model.BufferTimeConfig, title string, now time.Time) (before, after *model.CalendarEvent) {
	if cfg.Empty() {
		return nil, nil
	}
	if cfg.BeforeEvent > 0 {
		ev := shell(primary, title, now)
		ev.IsPreEvent = true
		ev.Duration = cfg.BeforeEvent
		ev.EndDate = primary.StartDate
		ev.StartDate = primary.StartDate.Add(-time.Duration(cfg.BeforeEvent) * time.Minute)
		before = &ev
	}
	if cfg.AfterEvent > 0 {
		ev := shell(primary, title, now)
		ev.IsPostEvent = true
		ev.Duration = cfg.AfterEvent
		ev.StartDate = primary.EndDate
		ev.EndDate = primary.EndDate.Add(time.Duration(cfg.AfterEvent) * time.Minute)
		after = &ev
	}
	return before, after
}

func shell(primary model.CalendarEvent, title string, now time.Time) model.CalendarEvent {
	return model.CalendarEvent{
		UserID:          primary.UserID,
		CalendarID:      primary.CalendarID,
		Title:           title,
		Summary:         title,
		Timezone:        primary.Timezone,
		Priority:        1,
		ColorID:         primary.ColorID,
		BackgroundColor: primary.BackgroundColor,
		Transparency:    primary.Transparency,
		Visibility:      primary.Visibility,
		ForEventID:      primary.ID,
		Modifiable:      true,
		Method:          "create",
		CreatedDate:     now,
		UpdatedAt:       now,
	}
}

// Synthesize creates the configured buffers on the provider. With no
// configured buffer it returns primary untouched. On error the returned
// Result still carries any buffer created before the failure.
func (s *Synthesizer) Synthesize(ctx context.Context, primary model.CalendarEvent, cfg *model.BufferTimeConfig) (Result, error) {
	res := Result{Primary: primary}
	if cfg.Empty() {
		return res, nil
	}

	in, err := s.integrations.Integration(ctx, primary.UserID)
	if err != nil {
		return res, fmt.Errorf("buffer: calendar integration: %w", err)
	}
	if in == nil || in.ClientType == "" {
		return res, ErrMissingClientType
	}

	before, after := Derive(primary, cfg, s.title, s.clock())
	if after != nil {
		if err := s.create(ctx, after, in.ClientType); err != nil {
			return res, fmt.Errorf("buffer: after event: %w", err)
		}
		res.After = after
	}
	if before != nil {
		if err := s.create(ctx, before, in.ClientType); err != nil {
			return res, fmt.Errorf("buffer: before event: %w", err)
		}
		res.Before = before
	}
	return res, nil
}

func (s *Synthesizer) create(ctx context.Context, ev *model.CalendarEvent, clientType string) error {
	requested := ""
	if s.newID != nil {
		requested = s.newID()
	}
	id, err := s.provider.CreateEvent(ctx, provider.EventRequest{
		UserID:       ev.UserID,
		CalendarID:   ev.CalendarID,
		ClientType:   clientType,
		EventID:      requested,
		Title:        ev.Title,
		Description:  ev.Title,
		Start:        ev.StartDate,
		End:          ev.EndDate,
		Timezone:     ev.Timezone,
		Transparency: ev.Transparency,
		Visibility:   ev.Visibility,
		ColorID:      ev.ColorID,
	})
	if err != nil {
		return err
	}
	ev.EventID = id
	ev.ID = model.CompositeEventID(id, ev.CalendarID)
	return nil
}

// Link points the primary at its buffers and returns the events to persist,
// primary first. Missing buffers leave the matching link unset.
func Link(res Result) []model.CalendarEvent {
	primary := res.Primary
	out := make([]model.CalendarEvent, 0, 3)
	if res.Before != nil {
		primary.PreEventID = res.Before.ID
	}
	if res.After != nil {
		primary.PostEventID = res.After.ID
	}
	out = append(out, primary)
	if res.Before != nil {
		out = append(out, *res.Before)
	}
	if res.After != nil {
		out = append(out, *res.After)
	}
	return out
}
