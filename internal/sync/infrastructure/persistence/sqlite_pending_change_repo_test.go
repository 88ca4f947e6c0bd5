package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLitePendingChangeRepository_AdmissionOrder(t *testing.T) {
	db := setupTestDB(t)
	account := seedAccount(t, db)
	repo := NewSQLitePendingChangeRepository(db)
	ctx := context.Background()

	payload, _ := json.Marshal(eventDraft("x", time.Now().UTC()))
	var ids []string
	for _, eventID := range []string{"ev-1", "ev-2", "ev-3"} {
		change, err := domain.NewPendingChange(domain.OpUpdate, account.ID(), "cal-1", eventID, payload)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, change))
		ids = append(ids, eventID)
	}

	ordered, err := repo.FindAllOrdered(ctx)
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	for i, change := range ordered {
		assert.Equal(t, ids[i], change.EventID())
		assert.Equal(t, int64(i+1), change.Seq())
	}
}

func TestSQLitePendingChangeRepository_RetryBookkeepingSurvivesUpsert(t *testing.T) {
	db := setupTestDB(t)
	account := seedAccount(t, db)
	repo := NewSQLitePendingChangeRepository(db)
	ctx := context.Background()

	change, err := domain.NewPendingChange(domain.OpDelete, account.ID(), "cal-1", "g-1", nil)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, change))

	change.RecordFailure(errors.New("rate limited"), 3)
	require.NoError(t, repo.Save(ctx, change))

	reloaded, err := repo.FindByID(ctx, change.ID())
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.Equal(t, 1, reloaded.RetryCount())
	assert.Equal(t, "rate limited", reloaded.LastError())
	// Re-saving must not consume a new sequence slot.
	assert.Equal(t, int64(1), reloaded.Seq())

	change.ResetRetries()
	require.NoError(t, repo.Save(ctx, change))
	reloaded, err = repo.FindByID(ctx, change.ID())
	require.NoError(t, err)
	assert.Zero(t, reloaded.RetryCount())
	assert.Empty(t, reloaded.LastError())
}

func TestSQLitePendingChangeRepository_FindByEvent(t *testing.T) {
	db := setupTestDB(t)
	account := seedAccount(t, db)
	repo := NewSQLitePendingChangeRepository(db)
	ctx := context.Background()

	payload, _ := json.Marshal(eventDraft("x", time.Now().UTC()))
	update, err := domain.NewPendingChange(domain.OpUpdate, account.ID(), "cal-1", "g-1", payload)
	require.NoError(t, err)
	other, err := domain.NewPendingChange(domain.OpDelete, account.ID(), "cal-1", "g-2", nil)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, update))
	require.NoError(t, repo.Save(ctx, other))

	found, err := repo.FindByEvent(ctx, "g-1")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, update.ID(), found[0].ID())

	draft, err := found[0].DecodeDraft()
	require.NoError(t, err)
	assert.Equal(t, "x", draft.Title)
}

func TestSQLitePendingChangeRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	account := seedAccount(t, db)
	repo := NewSQLitePendingChangeRepository(db)
	ctx := context.Background()

	change, err := domain.NewPendingChange(domain.OpDelete, account.ID(), "cal-1", "g-1", nil)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, change))
	require.NoError(t, repo.Delete(ctx, change.ID()))

	missing, err := repo.FindByID(ctx, change.ID())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteSyncMetadataRepository(t *testing.T) {
	db := setupTestDB(t)
	account := seedAccount(t, db)
	repo := NewSQLiteSyncMetadataRepository(db)
	ctx := context.Background()

	missing, err := repo.FindByAccountAndCalendar(ctx, account.ID(), "cal-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	meta := domain.NewSyncMetadata(account.ID(), "cal-1")
	meta.MarkSuccess("tok-1")
	require.NoError(t, repo.Save(ctx, meta))

	found, err := repo.FindByAccountAndCalendar(ctx, account.ID(), "cal-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "tok-1", found.SyncToken())
	assert.Equal(t, domain.SyncStatusSuccess, found.LastStatus())
	assert.False(t, found.NeedsFullSync())

	// One row per calendar: a second save updates in place.
	meta.MarkFailure("network unreachable")
	require.NoError(t, repo.Save(ctx, meta))
	rows, err := repo.FindByAccount(ctx, account.ID())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.SyncStatusError, rows[0].LastStatus())
	assert.Equal(t, "network unreachable", rows[0].ErrorMessage())
	assert.Equal(t, "tok-1", rows[0].SyncToken())
}
