package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/room-display/backend/internal/apperror"
	"github.com/room-display/backend/internal/storage/models"
)

const (
	graphBaseURL    = "https://graph.microsoft.com/v1.0"
	graphTimeLayout = "2006-01-02T15:04:05.9999999"
	graphPageSize   = 100
)

// Microsoft stores room events in an Outlook calendar through Microsoft Graph.
type Microsoft struct {
	tokens  TokenHook
	baseURL string
	client  *http.Client
}

// NewMicrosoft creates a Microsoft Graph provider. baseURL overrides the
// Graph root when non-empty.
func NewMicrosoft(tokens TokenHook, baseURL string) *Microsoft {
	if baseURL == "" {
		baseURL = graphBaseURL
	}
	return &Microsoft{tokens: tokens, baseURL: strings.TrimRight(baseURL, "/")}
}

// WithHTTPClient sets the base transport used under the OAuth client.
func (m *Microsoft) WithHTTPClient(c *http.Client) *Microsoft {
	m.client = c
	return m
}

func (m *Microsoft) Kind() string { return models.ProviderMicrosoft }

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphEvent struct {
	ID          string         `json:"id,omitempty"`
	Subject     string         `json:"subject,omitempty"`
	Body        *graphBody     `json:"body,omitempty"`
	BodyPreview string         `json:"bodyPreview,omitempty"`
	Start       *graphDateTime `json:"start,omitempty"`
	End         *graphDateTime `json:"end,omitempty"`
	IsCancelled bool           `json:"isCancelled,omitempty"`
	Organizer   *struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"organizer,omitempty"`
}

type graphEventPage struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

func (m *Microsoft) calendarPath(room models.Room) string {
	if room.CalendarID == "" {
		return m.baseURL + "/me/calendar"
	}
	return m.baseURL + "/me/calendars/" + url.PathEscape(room.CalendarID)
}

func (m *Microsoft) ListEvents(ctx context.Context, room models.Room, start, end time.Time) ([]models.Event, error) {
	client, err := authorizedClient(ctx, m.tokens, models.ProviderMicrosoft, m.client)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("startDateTime", start.UTC().Format(time.RFC3339))
	params.Set("endDateTime", end.UTC().Format(time.RFC3339))
	params.Set("$orderby", "start/dateTime")
	params.Set("$top", fmt.Sprintf("%d", graphPageSize))
	next := m.calendarPath(room) + "/calendarView?" + params.Encode()

	var events []models.Event
	for next != "" {
		var page graphEventPage
		if err := m.do(ctx, client, http.MethodGet, next, nil, http.StatusOK, &page, "list events", ""); err != nil {
			return nil, err
		}
		for _, item := range page.Value {
			if item.IsCancelled {
				continue
			}
			ev, err := fromGraph(room, item)
			if err != nil {
				return nil, err
			}
			events = append(events, *ev)
		}
		next = page.NextLink
	}

	return events, nil
}

func (m *Microsoft) CreateEvent(ctx context.Context, room models.Room, ev models.Event) (*models.Event, error) {
	client, err := authorizedClient(ctx, m.tokens, models.ProviderMicrosoft, m.client)
	if err != nil {
		return nil, err
	}

	body := graphEvent{
		Subject: ev.Title,
		Start:   graphTime(ev.Start),
		End:     graphTime(ev.End),
	}
	if content := graphContent(ev); content != "" {
		body.Body = &graphBody{ContentType: "text", Content: content}
	}

	var created graphEvent
	if err := m.do(ctx, client, http.MethodPost, m.calendarPath(room)+"/events", body, http.StatusCreated, &created, "create event", ""); err != nil {
		return nil, err
	}

	out, err := fromGraph(room, created)
	if err != nil {
		return nil, err
	}
	// Graph reports the account owner as organizer; keep the booker.
	if ev.Organizer != "" {
		out.Organizer = ev.Organizer
	}
	out.Description = ev.Description
	return out, nil
}

func (m *Microsoft) UpdateEventEnd(ctx context.Context, room models.Room, eventID string, end time.Time) (*models.Event, error) {
	client, err := authorizedClient(ctx, m.tokens, models.ProviderMicrosoft, m.client)
	if err != nil {
		return nil, err
	}

	var updated graphEvent
	patch := graphEvent{End: graphTime(end)}
	if err := m.do(ctx, client, http.MethodPatch, m.eventURL(room, eventID), patch, http.StatusOK, &updated, "update event", eventID); err != nil {
		return nil, err
	}
	return fromGraph(room, updated)
}

func (m *Microsoft) DeleteEvent(ctx context.Context, room models.Room, eventID string) error {
	client, err := authorizedClient(ctx, m.tokens, models.ProviderMicrosoft, m.client)
	if err != nil {
		return err
	}
	return m.do(ctx, client, http.MethodDelete, m.eventURL(room, eventID), nil, http.StatusNoContent, nil, "delete event", eventID)
}

func (m *Microsoft) eventURL(room models.Room, eventID string) string {
	return m.calendarPath(room) + "/events/" + url.PathEscape(eventID)
}

// do sends one Graph request and decodes the response into out when non-nil.
func (m *Microsoft) do(ctx context.Context, client *http.Client, method, endpoint string, in any, want int, out any, op, eventID string) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", op, err)
	}
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return apperror.Provider(models.ProviderMicrosoft, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return graphError(op, eventID, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Provider(models.ProviderMicrosoft, op, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func graphError(op, eventID string, status int, detail string) error {
	err := fmt.Errorf("status %d: %s", status, detail)
	switch status {
	case http.StatusNotFound:
		if eventID != "" {
			return apperror.NotFound("event", eventID)
		}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &apperror.ProviderError{Provider: models.ProviderMicrosoft, Op: op, Unauthorized: true, Err: err}
	}
	return apperror.Provider(models.ProviderMicrosoft, op, err)
}

func graphTime(t time.Time) *graphDateTime {
	return &graphDateTime{DateTime: t.UTC().Format("2006-01-02T15:04:05"), TimeZone: "UTC"}
}

func graphContent(ev models.Event) string {
	parts := make([]string, 0, 2)
	if ev.Description != "" {
		parts = append(parts, ev.Description)
	}
	if ev.Organizer != "" {
		parts = append(parts, "Booked by: "+ev.Organizer)
	}
	return strings.Join(parts, "\n\n")
}

func parseGraphTime(dt *graphDateTime) (time.Time, error) {
	if dt == nil {
		return time.Time{}, fmt.Errorf("missing event time")
	}
	loc := time.UTC
	if dt.TimeZone != "" && dt.TimeZone != "UTC" {
		if l, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = l
		}
	}
	return time.ParseInLocation(graphTimeLayout, dt.DateTime, loc)
}

func fromGraph(room models.Room, item graphEvent) (*models.Event, error) {
	start, err := parseGraphTime(item.Start)
	if err != nil {
		return nil, apperror.Provider(models.ProviderMicrosoft, "decode event", fmt.Errorf("event %s start: %w", item.ID, err))
	}
	end, err := parseGraphTime(item.End)
	if err != nil {
		return nil, apperror.Provider(models.ProviderMicrosoft, "decode event", fmt.Errorf("event %s end: %w", item.ID, err))
	}

	ev := &models.Event{
		ID:          item.ID,
		RoomID:      room.ID,
		Title:       item.Subject,
		Start:       start.UTC(),
		End:         end.UTC(),
		Description: item.BodyPreview,
		Origin:      models.ProviderMicrosoft,
	}
	if ev.Title == "" {
		ev.Title = DefaultTitle
	}
	if item.Organizer != nil {
		ev.Organizer = item.Organizer.EmailAddress.Name
		if ev.Organizer == "" {
			ev.Organizer = item.Organizer.EmailAddress.Address
		}
	}
	return ev, nil
}
