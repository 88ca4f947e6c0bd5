package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skalley/caldrift/internal/sync/application"
	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type staticTokenProvider struct{}

func (staticTokenProvider) TokenSource(ctx context.Context, accountID uuid.UUID) (oauth2.TokenSource, error) {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}), nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClientWithBaseURL(staticTokenProvider{}, nil, server.URL)
}

func TestListEvents_FullSync(t *testing.T) {
	var gotQuery map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/calendars/primary/events", r.URL.Path)
		gotQuery = map[string]string{
			"timeMin":     r.URL.Query().Get("timeMin"),
			"timeMax":     r.URL.Query().Get("timeMax"),
			"syncToken":   r.URL.Query().Get("syncToken"),
			"showDeleted": r.URL.Query().Get("showDeleted"),
		}
		json.NewEncoder(w).Encode(map[string]any{
			"nextSyncToken": "tok-1",
			"items": []map[string]any{
				{
					"id":      "g-1",
					"summary": "standup",
					"status":  "confirmed",
					"updated": "2026-03-15T10:00:00Z",
					"start":   map[string]string{"dateTime": "2026-03-16T09:00:00Z", "timeZone": "UTC"},
					"end":     map[string]string{"dateTime": "2026-03-16T09:30:00Z"},
					"attendees": []map[string]string{
						{"email": "ann@example.com", "responseStatus": "accepted"},
					},
				},
				{
					"id":      "g-2",
					"summary": "offsite",
					"status":  "confirmed",
					"start":   map[string]string{"date": "2026-03-20"},
					"end":     map[string]string{"date": "2026-03-21"},
				},
				{
					"id":     "g-3",
					"status": "cancelled",
				},
			},
		})
	})

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)
	page, err := client.ListEvents(context.Background(), uuid.New(), "primary", application.ListQuery{TimeMin: from, TimeMax: to})
	require.NoError(t, err)

	assert.Equal(t, "2026-03-01T00:00:00Z", gotQuery["timeMin"])
	assert.Equal(t, "2026-04-30T00:00:00Z", gotQuery["timeMax"])
	assert.Empty(t, gotQuery["syncToken"])
	assert.Equal(t, "true", gotQuery["showDeleted"])

	assert.Equal(t, "tok-1", page.NextSyncToken)
	require.Len(t, page.Items, 3)

	timed := page.Items[0]
	assert.Equal(t, "g-1", timed.ID)
	assert.Equal(t, "standup", timed.Title)
	assert.Equal(t, time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC), timed.StartAt)
	assert.Equal(t, time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC), timed.UpdatedAt)
	assert.Equal(t, []domain.Attendee{{Email: "ann@example.com", ResponseStatus: "accepted"}}, timed.Attendees)

	allDay := page.Items[1]
	assert.True(t, allDay.AllDay)
	assert.Equal(t, time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC), allDay.StartAt)

	cancelled := page.Items[2]
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.True(t, cancelled.StartAt.IsZero())
}

func TestListEvents_Incremental(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok-0", r.URL.Query().Get("syncToken"))
		assert.Empty(t, r.URL.Query().Get("timeMin"))
		json.NewEncoder(w).Encode(map[string]any{"nextSyncToken": "tok-1"})
	})

	page, err := client.ListEvents(context.Background(), uuid.New(), "primary", application.ListQuery{SyncToken: "tok-0"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, "tok-1", page.NextSyncToken)
}

func TestListEvents_ExpiredToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	})

	_, err := client.ListEvents(context.Background(), uuid.New(), "primary", application.ListQuery{SyncToken: "stale"})
	assert.ErrorIs(t, err, application.ErrSyncTokenExpired)
}

func TestCreateEvent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/calendars/primary/events", r.URL.Path)

		var sent googleEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		assert.Equal(t, "dentist", sent.Summary)
		assert.Equal(t, "2026-03-16T09:00:00Z", sent.Start.DateTime)

		sent.ID = "g-new"
		sent.Updated = "2026-03-15T12:00:00Z"
		json.NewEncoder(w).Encode(sent)
	})

	start := time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)
	draft := domain.EventDraft{
		Title:   "dentist",
		StartAt: start,
		EndAt:   start.Add(time.Hour),
		Status:  domain.StatusConfirmed,
	}
	confirmed, err := client.CreateEvent(context.Background(), uuid.New(), "primary", draft)
	require.NoError(t, err)
	assert.Equal(t, "g-new", confirmed.ID)
	assert.Equal(t, "dentist", confirmed.Title)
	assert.Equal(t, time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC), confirmed.UpdatedAt)
}

func TestUpdateEvent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/calendars/primary/events/g-1", r.URL.Path)

		var sent googleEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		sent.ID = "g-1"
		json.NewEncoder(w).Encode(sent)
	})

	start := time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)
	draft := domain.EventDraft{Title: "moved", StartAt: start, EndAt: start.Add(time.Hour)}
	confirmed, err := client.UpdateEvent(context.Background(), uuid.New(), "primary", "g-1", draft)
	require.NoError(t, err)
	assert.Equal(t, "g-1", confirmed.ID)
	assert.Equal(t, "moved", confirmed.Title)
}

func TestDeleteEvent_AbsentIsNotAnError(t *testing.T) {
	status := http.StatusNoContent
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(status)
	})

	require.NoError(t, client.DeleteEvent(context.Background(), uuid.New(), "primary", "g-1"))

	status = http.StatusNotFound
	require.NoError(t, client.DeleteEvent(context.Background(), uuid.New(), "primary", "g-1"))
}

func TestListCalendars(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me/calendarList", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "primary", "summary": "Personal", "primary": true, "backgroundColor": "#9fe1e7"},
				{"id": "work@example.com", "summary": "Work"},
			},
		})
	})

	calendars, err := client.ListCalendars(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, calendars, 2)
	assert.True(t, calendars[0].Primary)
	assert.Equal(t, "Work", calendars[1].Name)
}

func TestBreakerOpensAfterConsecutiveServerErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	query := application.ListQuery{TimeMin: time.Now(), TimeMax: time.Now().Add(time.Hour)}
	for i := 0; i < 5; i++ {
		_, err := client.ListEvents(context.Background(), uuid.New(), "primary", query)
		require.Error(t, err)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}

	_, err := client.ListEvents(context.Background(), uuid.New(), "primary", query)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
