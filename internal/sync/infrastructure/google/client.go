// Package google implements the remote calendar port against the Google
// Calendar v3 REST API.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/skalley/caldrift/internal/sync/application"
	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

const dateOnly = "2006-01-02"

type tokenSourceProvider interface {
	TokenSource(ctx context.Context, accountID uuid.UUID) (oauth2.TokenSource, error)
}

// Client talks to the Google Calendar API for one provider. A circuit
// breaker sits in front of every request so a flapping API trips fast
// instead of burning the retry budget of every queued change.
type Client struct {
	oauth   tokenSourceProvider
	logger  *slog.Logger
	baseURL string
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewClient creates a Google Calendar client.
func NewClient(oauth tokenSourceProvider, logger *slog.Logger) *Client {
	return NewClientWithBaseURL(oauth, logger, defaultBaseURL)
}

// NewClientWithBaseURL creates a client against a custom base URL, used by
// tests to point at a local server.
func NewClientWithBaseURL(oauth tokenSourceProvider, logger *slog.Logger, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "google-calendar",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		oauth:   oauth,
		logger:  logger,
		baseURL: baseURL,
		breaker: breaker,
	}
}

func (c *Client) httpClient(ctx context.Context, accountID uuid.UUID) (*http.Client, error) {
	if c.oauth == nil {
		return nil, fmt.Errorf("oauth service not configured")
	}
	tokenSource, err := c.oauth.TokenSource(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Timeout: 15 * time.Second,
		Transport: &oauthTransport{
			base:   http.DefaultTransport,
			source: tokenSource,
		},
	}, nil
}

// do sends one request through the breaker. Only transport failures and 5xx
// responses count against the breaker; client errors are the caller's.
func (c *Client) do(client *http.Client, req *http.Request) (*http.Response, error) {
	return c.breaker.Execute(func() (*http.Response, error) {
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			defer resp.Body.Close()
			return nil, responseError(resp)
		}
		return resp, nil
	})
}

// ListEvents implements application.RemoteClient.
func (c *Client) ListEvents(ctx context.Context, accountID uuid.UUID, calendarID string, q application.ListQuery) (*application.EventPage, error) {
	client, err := c.httpClient(ctx, accountID)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	if q.SyncToken != "" {
		params.Set("syncToken", q.SyncToken)
	} else {
		params.Set("timeMin", q.TimeMin.UTC().Format(time.RFC3339))
		params.Set("timeMax", q.TimeMax.UTC().Format(time.RFC3339))
	}
	if q.PageToken != "" {
		params.Set("pageToken", q.PageToken)
	}
	// Cancelled instances must be present so local deletions propagate.
	params.Set("showDeleted", "true")

	listURL := fmt.Sprintf("%s/calendars/%s/events?%s", c.baseURL, url.PathEscape(calendarID), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(client, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		// The API garbage-collected the incremental cursor.
		return nil, application.ErrSyncTokenExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp)
	}

	var payload struct {
		Items         []googleEvent `json:"items"`
		NextPageToken string        `json:"nextPageToken"`
		NextSyncToken string        `json:"nextSyncToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	page := &application.EventPage{
		NextPageToken: payload.NextPageToken,
		NextSyncToken: payload.NextSyncToken,
	}
	for _, item := range payload.Items {
		event, err := fromGoogleEvent(item)
		if err != nil {
			c.logger.Warn("skipping unparseable event",
				"event_id", item.ID,
				"error", err,
			)
			continue
		}
		page.Items = append(page.Items, event)
	}
	return page, nil
}

// CreateEvent implements application.RemoteClient.
func (c *Client) CreateEvent(ctx context.Context, accountID uuid.UUID, calendarID string, draft domain.EventDraft) (*application.RemoteEvent, error) {
	createURL := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(calendarID))
	return c.sendEvent(ctx, accountID, http.MethodPost, createURL, draft)
}

// UpdateEvent implements application.RemoteClient.
func (c *Client) UpdateEvent(ctx context.Context, accountID uuid.UUID, calendarID, eventID string, draft domain.EventDraft) (*application.RemoteEvent, error) {
	updateURL := fmt.Sprintf("%s/calendars/%s/events/%s", c.baseURL, url.PathEscape(calendarID), url.PathEscape(eventID))
	return c.sendEvent(ctx, accountID, http.MethodPut, updateURL, draft)
}

func (c *Client) sendEvent(ctx context.Context, accountID uuid.UUID, method, eventURL string, draft domain.EventDraft) (*application.RemoteEvent, error) {
	client, err := c.httpClient(ctx, accountID)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(toGoogleEvent(draft))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, eventURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(client, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp)
	}

	var confirmed googleEvent
	if err := json.NewDecoder(resp.Body).Decode(&confirmed); err != nil {
		return nil, err
	}
	event, err := fromGoogleEvent(confirmed)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// DeleteEvent implements application.RemoteClient. Deleting an event the
// remote no longer has succeeds, so delete replays stay idempotent.
func (c *Client) DeleteEvent(ctx context.Context, accountID uuid.UUID, calendarID, eventID string) error {
	client, err := c.httpClient(ctx, accountID)
	if err != nil {
		return err
	}

	deleteURL := fmt.Sprintf("%s/calendars/%s/events/%s", c.baseURL, url.PathEscape(calendarID), url.PathEscape(eventID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, deleteURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.do(client, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}
	return nil
}

// Calendar is one entry of the account's calendar list.
type Calendar struct {
	ID      string
	Name    string
	Color   string
	Primary bool
}

// ListCalendars returns the calendars visible to the account.
func (c *Client) ListCalendars(ctx context.Context, accountID uuid.UUID) ([]Calendar, error) {
	client, err := c.httpClient(ctx, accountID)
	if err != nil {
		return nil, err
	}

	listURL := fmt.Sprintf("%s/users/me/calendarList", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(client, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp)
	}

	var payload struct {
		Items []struct {
			ID              string `json:"id"`
			Summary         string `json:"summary"`
			BackgroundColor string `json:"backgroundColor"`
			Primary         bool   `json:"primary"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	calendars := make([]Calendar, 0, len(payload.Items))
	for _, item := range payload.Items {
		calendars = append(calendars, Calendar{
			ID:      item.ID,
			Name:    item.Summary,
			Color:   item.BackgroundColor,
			Primary: item.Primary,
		})
	}
	return calendars, nil
}

type googleEventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type googleEvent struct {
	ID          string          `json:"id,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	Description string          `json:"description,omitempty"`
	Location    string          `json:"location,omitempty"`
	Status      string          `json:"status,omitempty"`
	Updated     string          `json:"updated,omitempty"`
	Recurrence  []string        `json:"recurrence,omitempty"`
	Start       googleEventTime `json:"start,omitempty"`
	End         googleEventTime `json:"end,omitempty"`
	Attendees   []struct {
		Email          string `json:"email"`
		ResponseStatus string `json:"responseStatus,omitempty"`
	} `json:"attendees,omitempty"`
}

func toGoogleEvent(draft domain.EventDraft) googleEvent {
	event := googleEvent{
		Summary:     draft.Title,
		Description: draft.Description,
		Location:    draft.Location,
		Status:      string(draft.Status),
		Recurrence:  draft.Recurrence,
	}
	if draft.AllDay {
		event.Start.Date = draft.StartAt.Format(dateOnly)
		event.End.Date = draft.EndAt.Format(dateOnly)
	} else {
		event.Start.DateTime = draft.StartAt.Format(time.RFC3339)
		event.End.DateTime = draft.EndAt.Format(time.RFC3339)
		event.Start.TimeZone = draft.Timezone
		event.End.TimeZone = draft.Timezone
	}
	for _, attendee := range draft.Attendees {
		event.Attendees = append(event.Attendees, struct {
			Email          string `json:"email"`
			ResponseStatus string `json:"responseStatus,omitempty"`
		}{Email: attendee.Email, ResponseStatus: attendee.ResponseStatus})
	}
	return event
}

func fromGoogleEvent(item googleEvent) (application.RemoteEvent, error) {
	event := application.RemoteEvent{ID: item.ID}
	event.Title = item.Summary
	event.Description = item.Description
	event.Location = item.Location
	event.Status = domain.EventStatus(item.Status)
	event.Recurrence = item.Recurrence

	if item.Updated != "" {
		updated, err := time.Parse(time.RFC3339, item.Updated)
		if err != nil {
			return event, fmt.Errorf("parsing updated: %w", err)
		}
		event.UpdatedAt = updated
	}

	// Cancelled instances arrive as bare id+status stubs.
	if item.Status == "cancelled" && item.Start.DateTime == "" && item.Start.Date == "" {
		return event, nil
	}

	switch {
	case item.Start.DateTime != "":
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return event, fmt.Errorf("parsing start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			return event, fmt.Errorf("parsing end: %w", err)
		}
		event.StartAt = start
		event.EndAt = end
		event.Timezone = item.Start.TimeZone
	case item.Start.Date != "":
		start, err := time.Parse(dateOnly, item.Start.Date)
		if err != nil {
			return event, fmt.Errorf("parsing start date: %w", err)
		}
		end, err := time.Parse(dateOnly, item.End.Date)
		if err != nil {
			return event, fmt.Errorf("parsing end date: %w", err)
		}
		event.StartAt = start
		event.EndAt = end
		event.AllDay = true
	default:
		return event, fmt.Errorf("event %s has no start time", item.ID)
	}

	for _, attendee := range item.Attendees {
		event.Attendees = append(event.Attendees, domain.Attendee{
			Email:          attendee.Email,
			ResponseStatus: attendee.ResponseStatus,
		})
	}
	return event, nil
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("calendar request failed: status=%d body=%s", resp.StatusCode, string(body))
}

type oauthTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
}

func (t *oauthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.source.Token()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return t.base.RoundTrip(req)
}
