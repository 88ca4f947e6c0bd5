package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteEventRepository_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	account := seedAccount(t, db)
	repo := NewSQLiteEventRepository(db)
	ctx := context.Background()

	start := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	draft := eventDraft("planning", start)
	draft.Description = "quarterly planning"
	draft.Location = "room 4"
	draft.Timezone = "Europe/Berlin"
	draft.Recurrence = []string{"RRULE:FREQ=WEEKLY;BYDAY=MO"}
	draft.Attendees = []domain.Attendee{
		{Email: "ann@example.com", ResponseStatus: "accepted"},
		{Email: "bob@example.com"},
	}

	syncedAt := time.Now().UTC().Truncate(time.Second)
	event, err := domain.NewSyncedEvent("g-1", account.ID(), "cal-1", draft, syncedAt)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, event))

	found, err := repo.FindByID(ctx, "g-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "planning", found.Title())
	assert.Equal(t, "quarterly planning", found.Description())
	assert.Equal(t, "room 4", found.Location())
	assert.Equal(t, "Europe/Berlin", found.Timezone())
	assert.True(t, start.Equal(found.StartAt()))
	assert.Equal(t, []string{"RRULE:FREQ=WEEKLY;BYDAY=MO"}, found.Recurrence())
	assert.Equal(t, draft.Attendees, found.Attendees())
	assert.Equal(t, domain.StatusConfirmed, found.Status())
	assert.False(t, found.PendingSync())
	assert.True(t, syncedAt.Equal(found.LastSyncedAt()))

	missing, err := repo.FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteEventRepository_ConflictSnapshots(t *testing.T) {
	db := setupTestDB(t)
	account := seedAccount(t, db)
	repo := NewSQLiteEventRepository(db)
	ctx := context.Background()

	draft := eventDraft("standup", time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC))
	event, err := domain.NewSyncedEvent("g-1", account.ID(), "cal-1", draft, time.Now().UTC())
	require.NoError(t, err)

	localSnap, _ := json.Marshal(draft)
	remote := draft
	remote.Title = "standup (moved)"
	remoteSnap, _ := json.Marshal(remote)
	require.NoError(t, event.MarkConflict(localSnap, remoteSnap))
	require.NoError(t, repo.Save(ctx, event))

	found, err := repo.FindByID(ctx, "g-1")
	require.NoError(t, err)
	require.True(t, found.HasConflict())
	assert.JSONEq(t, string(localSnap), string(found.LocalSnapshot()))
	assert.JSONEq(t, string(remoteSnap), string(found.RemoteSnapshot()))

	// Resolution clears both snapshots back to NULL.
	require.NoError(t, found.ResolveKeepRemote())
	require.NoError(t, repo.Save(ctx, found))
	resolved, err := repo.FindByID(ctx, "g-1")
	require.NoError(t, err)
	assert.False(t, resolved.HasConflict())
	assert.Empty(t, resolved.LocalSnapshot())
	assert.Empty(t, resolved.RemoteSnapshot())
	assert.Equal(t, "standup (moved)", resolved.Title())
}

func TestSQLiteEventRepository_Upsert(t *testing.T) {
	db := setupTestDB(t)
	account := seedAccount(t, db)
	repo := NewSQLiteEventRepository(db)
	ctx := context.Background()

	draft := eventDraft("v1", time.Date(2026, 4, 3, 9, 0, 0, 0, time.UTC))
	event, err := domain.NewSyncedEvent("g-1", account.ID(), "cal-1", draft, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, event))

	draft.Title = "v2"
	event.ApplyRemote(draft, time.Now().UTC())
	require.NoError(t, repo.Save(ctx, event))

	events, err := repo.FindByCalendar(ctx, account.ID(), "cal-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "v2", events[0].Title())
}

func TestSQLiteEventRepository_FindOutsideWindow(t *testing.T) {
	db := setupTestDB(t)
	account := seedAccount(t, db)
	repo := NewSQLiteEventRepository(db)
	ctx := context.Background()

	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mk := func(id string, start time.Time) {
		event, err := domain.NewSyncedEvent(id, account.ID(), "cal-1", eventDraft(id, start), time.Now().UTC())
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, event))
	}
	mk("before", from.AddDate(0, -1, 0))
	mk("inside", from.AddDate(0, 0, 10))
	mk("after", to.AddDate(0, 1, 0))

	outside, err := repo.FindOutsideWindow(ctx, account.ID(), "cal-1", from, to)
	require.NoError(t, err)
	require.Len(t, outside, 2)
	assert.Equal(t, "before", outside[0].ID())
	assert.Equal(t, "after", outside[1].ID())
}

func TestSQLiteEventRepository_FindOutsideWindowNonUTCStarts(t *testing.T) {
	db := setupTestDB(t)
	account := seedAccount(t, db)
	repo := NewSQLiteEventRepository(db)
	ctx := context.Background()

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tokyo := time.FixedZone("UTC+9", 9*3600)
	mk := func(id string, start time.Time) {
		event, err := domain.NewSyncedEvent(id, account.ID(), "cal-1", eventDraft(id, start), time.Now().UTC())
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, event))
	}
	// 2026-02-01T05:00+09:00 is 2026-01-31T20:00Z: before the window even
	// though its wall-clock date is inside it.
	mk("before-offset", time.Date(2026, 2, 1, 5, 0, 0, 0, tokyo))
	// 2026-03-01T08:00+09:00 is 2026-02-28T23:00Z: still inside.
	mk("inside-offset", time.Date(2026, 3, 1, 8, 0, 0, 0, tokyo))

	outside, err := repo.FindOutsideWindow(ctx, account.ID(), "cal-1", from, to)
	require.NoError(t, err)
	require.Len(t, outside, 1)
	assert.Equal(t, "before-offset", outside[0].ID())
}
