package calendar

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
)

// API — узкая обёртка над Calendar v3, чтобы pull/push можно было
// тестировать без сети
type API interface {
	Insert(ctx context.Context, calendarID string, event *gcal.Event) (*gcal.Event, error)
	Patch(ctx context.Context, calendarID, eventID string, event *gcal.Event) (*gcal.Event, error)
	Delete(ctx context.Context, calendarID, eventID string) error
	List(ctx context.Context, calendarID string, from, to time.Time, pageToken string) (*gcal.Events, error)
}

// APIFactory строит API под конкретного пользователя
type APIFactory func(ctx context.Context, userID int64) (API, error)

type googleAPI struct {
	svc *gcal.Service
}

func (g *googleAPI) Insert(ctx context.Context, calendarID string, event *gcal.Event) (*gcal.Event, error) {
	created, err := g.svc.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar insert: %w", err)
	}
	return created, nil
}

func (g *googleAPI) Patch(ctx context.Context, calendarID, eventID string, event *gcal.Event) (*gcal.Event, error) {
	patched, err := g.svc.Events.Patch(calendarID, eventID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar patch: %w", err)
	}
	return patched, nil
}

func (g *googleAPI) Delete(ctx context.Context, calendarID, eventID string) error {
	if err := g.svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("calendar delete: %w", err)
	}
	return nil
}

func (g *googleAPI) List(ctx context.Context, calendarID string, from, to time.Time, pageToken string) (*gcal.Events, error) {
	call := g.svc.Events.List(calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		ShowDeleted(true).
		OrderBy("startTime").
		MaxResults(250).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	events, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("calendar list: %w", err)
	}
	return events, nil
}
