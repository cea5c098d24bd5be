package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/room-display/backend/internal/apperror"
	"github.com/room-display/backend/internal/storage/models"
)

// bookerKey is the private extended property carrying the booker's name.
const bookerKey = "booker"

// Google stores room events in Google Calendar.
type Google struct {
	tokens   TokenHook
	endpoint string
	client   *http.Client
	loc      *time.Location
}

// NewGoogle creates a Google provider. endpoint overrides the API root when non-empty.
func NewGoogle(tokens TokenHook, endpoint string) *Google {
	return &Google{tokens: tokens, endpoint: endpoint}
}

// WithHTTPClient sets the base transport used under the OAuth client.
func (g *Google) WithHTTPClient(c *http.Client) *Google {
	g.client = c
	return g
}

// WithLocation sets the zone all-day dates are read in for rooms without
// their own timezone. Unset means time.Local.
func (g *Google) WithLocation(loc *time.Location) *Google {
	g.loc = loc
	return g
}

func (g *Google) location(room models.Room) *time.Location {
	return room.Location(g.loc)
}

func (g *Google) Kind() string { return models.ProviderGoogle }

func (g *Google) service(ctx context.Context) (*calendar.Service, error) {
	client, err := authorizedClient(ctx, g.tokens, models.ProviderGoogle, g.client)
	if err != nil {
		return nil, err
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, apperror.Provider(models.ProviderGoogle, "connect", err)
	}
	return svc, nil
}

func calendarID(room models.Room) string {
	if room.CalendarID == "" {
		return "primary"
	}
	return room.CalendarID
}

func (g *Google) ListEvents(ctx context.Context, room models.Room, start, end time.Time) ([]models.Event, error) {
	svc, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	loc := g.location(room)
	var events []models.Event
	call := svc.Events.List(calendarID(room)).
		TimeMin(start.UTC().Format(time.RFC3339)).
		TimeMax(end.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)

	err = call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			ev, err := fromGoogle(room, item, loc)
			if err != nil {
				return err
			}
			if ev.Overlaps(start, end) {
				events = append(events, *ev)
			}
		}
		return nil
	})
	if err != nil {
		return nil, googleError("list events", "", err)
	}

	return events, nil
}

func (g *Google) CreateEvent(ctx context.Context, room models.Room, ev models.Event) (*models.Event, error) {
	svc, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	body := &calendar.Event{
		Summary:     ev.Title,
		Description: ev.Description,
		Start:       googleTime(ev.Start),
		End:         googleTime(ev.End),
	}
	if ev.Organizer != "" {
		body.ExtendedProperties = &calendar.EventExtendedProperties{
			Private: map[string]string{bookerKey: ev.Organizer},
		}
	}

	created, err := svc.Events.Insert(calendarID(room), body).Context(ctx).Do()
	if err != nil {
		return nil, googleError("create event", "", err)
	}
	return fromGoogle(room, created, g.location(room))
}

func (g *Google) UpdateEventEnd(ctx context.Context, room models.Room, eventID string, end time.Time) (*models.Event, error) {
	svc, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	patch := &calendar.Event{End: googleTime(end)}
	updated, err := svc.Events.Patch(calendarID(room), eventID, patch).Context(ctx).Do()
	if err != nil {
		return nil, googleError("update event", eventID, err)
	}
	return fromGoogle(room, updated, g.location(room))
}

func (g *Google) DeleteEvent(ctx context.Context, room models.Room, eventID string) error {
	svc, err := g.service(ctx)
	if err != nil {
		return err
	}

	if err := svc.Events.Delete(calendarID(room), eventID).Context(ctx).Do(); err != nil {
		return googleError("delete event", eventID, err)
	}
	return nil
}

func googleTime(t time.Time) *calendar.EventDateTime {
	return &calendar.EventDateTime{
		DateTime: t.UTC().Format(time.RFC3339),
		TimeZone: "UTC",
	}
}

// parseGoogleTime reads a timed or all-day boundary. All-day dates are
// midnight in loc.
func parseGoogleTime(dt *calendar.EventDateTime, loc *time.Location) (time.Time, error) {
	if dt == nil {
		return time.Time{}, errors.New("missing event time")
	}
	if dt.DateTime != "" {
		return time.Parse(time.RFC3339, dt.DateTime)
	}
	return time.ParseInLocation("2006-01-02", dt.Date, loc)
}

func fromGoogle(room models.Room, item *calendar.Event, loc *time.Location) (*models.Event, error) {
	start, err := parseGoogleTime(item.Start, loc)
	if err != nil {
		return nil, apperror.Provider(models.ProviderGoogle, "decode event", fmt.Errorf("event %s start: %w", item.Id, err))
	}
	end, err := parseGoogleTime(item.End, loc)
	if err != nil {
		return nil, apperror.Provider(models.ProviderGoogle, "decode event", fmt.Errorf("event %s end: %w", item.Id, err))
	}

	ev := &models.Event{
		ID:          item.Id,
		RoomID:      room.ID,
		Title:       item.Summary,
		Start:       start,
		End:         end,
		Description: item.Description,
		Origin:      models.ProviderGoogle,
	}
	if ev.Title == "" {
		ev.Title = DefaultTitle
	}
	if item.ExtendedProperties != nil && item.ExtendedProperties.Private[bookerKey] != "" {
		ev.Organizer = item.ExtendedProperties.Private[bookerKey]
	} else if item.Organizer != nil {
		ev.Organizer = item.Organizer.Email
	}

	return ev, nil
}

func googleError(op, eventID string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound, http.StatusGone:
			if eventID != "" {
				return apperror.NotFound("event", eventID)
			}
		case http.StatusUnauthorized, http.StatusForbidden:
			return &apperror.ProviderError{Provider: models.ProviderGoogle, Op: op, Unauthorized: true, Err: err}
		}
	}
	return apperror.Provider(models.ProviderGoogle, op, err)
}
