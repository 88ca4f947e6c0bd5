// Package caldav implements the remote calendar port against CalDAV servers
// (Apple Calendar, Fastmail, Nextcloud, Radicale).
package caldav

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/skalley/caldrift/internal/sync/application"
	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
)

// Common CalDAV server URLs.
const (
	AppleCalDAVURL    = "https://caldav.icloud.com"
	FastmailCalDAVURL = "https://caldav.fastmail.com"
)

// Credentials is the credential material stored on a CalDAV account.
type Credentials struct {
	ServerURL string `json:"serverUrl"`
	Username  string `json:"username"`
	Password  string `json:"password"` // app-specific password for Apple
}

// Client talks to CalDAV servers. CalDAV has no incremental cursor
// comparable to a sync token, so every listing is a full windowed query and
// NextSyncToken stays empty.
type Client struct {
	accounts domain.AccountRepository
	logger   *slog.Logger
	baseURL  string // overrides the stored server URL, used by tests
}

// NewClient creates a CalDAV client resolving credentials per account.
func NewClient(accounts domain.AccountRepository, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{accounts: accounts, logger: logger}
}

// NewClientWithBaseURL creates a client pinned to one server URL.
func NewClientWithBaseURL(accounts domain.AccountRepository, logger *slog.Logger, baseURL string) *Client {
	c := NewClient(accounts, logger)
	c.baseURL = baseURL
	return c
}

func (c *Client) davClient(ctx context.Context, accountID uuid.UUID) (*caldav.Client, error) {
	account, err := c.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("unknown account %s", accountID)
	}

	var creds Credentials
	if err := json.Unmarshal(account.Credential(), &creds); err != nil {
		return nil, fmt.Errorf("decoding stored credential: %w", err)
	}
	serverURL := creds.ServerURL
	if c.baseURL != "" {
		serverURL = c.baseURL
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	client, err := caldav.NewClient(
		webdav.HTTPClientWithBasicAuth(httpClient, creds.Username, creds.Password),
		serverURL,
	)
	if err != nil {
		return nil, fmt.Errorf("creating caldav client: %w", err)
	}
	return client, nil
}

// ListEvents implements application.RemoteClient. The calendar ID is the
// collection path on the server.
func (c *Client) ListEvents(ctx context.Context, accountID uuid.UUID, calendarID string, q application.ListQuery) (*application.EventPage, error) {
	client, err := c.davClient(ctx, accountID)
	if err != nil {
		return nil, err
	}

	// No cursor support: an incremental request degrades to the same full
	// windowed query. The engine treats the empty NextSyncToken as "always
	// full sync" for this provider.
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  "VCALENDAR",
			Props: []string{"VERSION"},
			Comps: []caldav.CalendarCompRequest{
				{
					Name: "VEVENT",
					Props: []string{
						"UID", "SUMMARY", "DESCRIPTION", "LOCATION", "STATUS",
						"DTSTART", "DTEND", "RRULE", "ATTENDEE", "LAST-MODIFIED",
					},
				},
			},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{
					Name:  "VEVENT",
					Start: q.TimeMin,
					End:   q.TimeMax,
				},
			},
		},
	}

	objects, err := client.QueryCalendar(ctx, calendarID, query)
	if err != nil {
		return nil, fmt.Errorf("querying calendar: %w", err)
	}

	page := &application.EventPage{}
	for _, obj := range objects {
		event, ok := fromCalendarObject(&obj)
		if !ok {
			continue
		}
		page.Items = append(page.Items, event)
	}
	return page, nil
}

// CreateEvent implements application.RemoteClient. The server-side object
// path is derived from a fresh UID.
func (c *Client) CreateEvent(ctx context.Context, accountID uuid.UUID, calendarID string, draft domain.EventDraft) (*application.RemoteEvent, error) {
	client, err := c.davClient(ctx, accountID)
	if err != nil {
		return nil, err
	}

	uid := uuid.NewString()
	if _, err := client.PutCalendarObject(ctx, eventPath(calendarID, uid), toICalendar(uid, draft)); err != nil {
		return nil, fmt.Errorf("putting event: %w", err)
	}

	confirmed := application.RemoteEvent{ID: uid, UpdatedAt: time.Now().UTC(), EventDraft: draft}
	return &confirmed, nil
}

// UpdateEvent implements application.RemoteClient.
func (c *Client) UpdateEvent(ctx context.Context, accountID uuid.UUID, calendarID, eventID string, draft domain.EventDraft) (*application.RemoteEvent, error) {
	client, err := c.davClient(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if _, err := client.PutCalendarObject(ctx, eventPath(calendarID, eventID), toICalendar(eventID, draft)); err != nil {
		return nil, fmt.Errorf("putting event: %w", err)
	}

	confirmed := application.RemoteEvent{ID: eventID, UpdatedAt: time.Now().UTC(), EventDraft: draft}
	return &confirmed, nil
}

// DeleteEvent implements application.RemoteClient. An already-absent object
// is treated as deleted.
func (c *Client) DeleteEvent(ctx context.Context, accountID uuid.UUID, calendarID, eventID string) error {
	client, err := c.davClient(ctx, accountID)
	if err != nil {
		return err
	}

	if err := client.RemoveAll(ctx, eventPath(calendarID, eventID)); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("removing event: %w", err)
	}
	return nil
}

// isNotFound reports whether err is go-webdav's HTTP 404 error. The library
// keeps its HTTPError type internal, so the status code is only observable
// through the error text ("404 Not Found[: cause]").
func isNotFound(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "404 ")
}

// Calendar is one collection discovered on the server.
type Calendar struct {
	ID      string // collection path
	Name    string
	Primary bool
}

// ListCalendars discovers the account's calendar collections.
func (c *Client) ListCalendars(ctx context.Context, accountID uuid.UUID) ([]Calendar, error) {
	client, err := c.davClient(ctx, accountID)
	if err != nil {
		return nil, err
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding principal: %w", err)
	}
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("finding calendar home set: %w", err)
	}
	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("finding calendars: %w", err)
	}

	calendars := make([]Calendar, 0, len(cals))
	for i, cal := range cals {
		calendars = append(calendars, Calendar{
			ID:      cal.Path,
			Name:    cal.Name,
			Primary: i == 0,
		})
	}
	return calendars, nil
}

func eventPath(calendarPath, uid string) string {
	if !strings.HasSuffix(calendarPath, "/") {
		calendarPath += "/"
	}
	return calendarPath + uid + ".ics"
}

// toICalendar renders a draft as a single-event VCALENDAR.
func toICalendar(uid string, draft domain.EventDraft) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//caldrift//Calendar Sync//EN")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, draft.StartAt.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, draft.EndAt.UTC())
	event.Props.SetText(ical.PropSummary, draft.Title)
	if draft.Description != "" {
		event.Props.SetText(ical.PropDescription, draft.Description)
	}
	if draft.Location != "" {
		event.Props.SetText(ical.PropLocation, draft.Location)
	}
	if draft.Status != "" {
		event.Props.SetText(ical.PropStatus, strings.ToUpper(string(draft.Status)))
	}
	for _, rule := range draft.Recurrence {
		prop := ical.NewProp(ical.PropRecurrenceRule)
		prop.Value = strings.TrimPrefix(rule, "RRULE:")
		event.Props.Add(prop)
	}
	for _, attendee := range draft.Attendees {
		prop := ical.NewProp(ical.PropAttendee)
		prop.Value = "mailto:" + attendee.Email
		if attendee.ResponseStatus != "" {
			prop.Params.Set(ical.ParamParticipationStatus, strings.ToUpper(attendee.ResponseStatus))
		}
		event.Props.Add(prop)
	}

	cal.Children = append(cal.Children, event.Component)
	return cal
}

// fromCalendarObject maps the first VEVENT of an object to a remote event.
func fromCalendarObject(obj *caldav.CalendarObject) (application.RemoteEvent, bool) {
	var event application.RemoteEvent
	if obj == nil || obj.Data == nil {
		return event, false
	}

	for _, child := range obj.Data.Children {
		if child.Name != ical.CompEvent {
			continue
		}

		event.ID = obj.Path
		if props := child.Props[ical.PropUID]; len(props) > 0 {
			event.ID = props[0].Value
		}
		if props := child.Props[ical.PropSummary]; len(props) > 0 {
			event.Title = props[0].Value
		}
		if props := child.Props[ical.PropDescription]; len(props) > 0 {
			event.Description = props[0].Value
		}
		if props := child.Props[ical.PropLocation]; len(props) > 0 {
			event.Location = props[0].Value
		}
		if props := child.Props[ical.PropStatus]; len(props) > 0 {
			event.Status = domain.EventStatus(strings.ToLower(props[0].Value))
		}
		for _, prop := range child.Props[ical.PropRecurrenceRule] {
			event.Recurrence = append(event.Recurrence, "RRULE:"+prop.Value)
		}
		for _, prop := range child.Props[ical.PropAttendee] {
			attendee := domain.Attendee{Email: strings.TrimPrefix(prop.Value, "mailto:")}
			if status := prop.Params.Get(ical.ParamParticipationStatus); status != "" {
				attendee.ResponseStatus = strings.ToLower(status)
			}
			event.Attendees = append(event.Attendees, attendee)
		}
		if props := child.Props[ical.PropLastModified]; len(props) > 0 {
			if modified, err := time.Parse("20060102T150405Z", props[0].Value); err == nil {
				event.UpdatedAt = modified
			}
		}

		icalEvent := &ical.Event{Component: child}
		if start, err := icalEvent.DateTimeStart(time.UTC); err == nil {
			event.StartAt = start
		}
		if end, err := icalEvent.DateTimeEnd(time.UTC); err == nil {
			event.EndAt = end
		}
		if event.StartAt.IsZero() {
			return event, false
		}

		return event, true
	}
	return event, false
}
