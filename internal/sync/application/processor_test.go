package application

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type processorFixture struct {
	processor  *Processor
	queue      *Queue
	remote     *fakeRemote
	events     *memEventRepo
	changes    *memChangeRepo
	tombstones *memTombstoneRepo
	errorLog   *memErrorLogRepo
	accountID  uuid.UUID
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	f := &processorFixture{
		remote:     &fakeRemote{},
		events:     newMemEventRepo(),
		changes:    newMemChangeRepo(),
		tombstones: newMemTombstoneRepo(),
		errorLog:   newMemErrorLogRepo(),
		accountID:  uuid.New(),
	}
	f.processor = NewProcessor(
		f.remote, f.events, f.changes, f.tombstones, f.errorLog,
		DefaultRetryCeiling, nil,
	)
	f.queue = NewQueue(f.events, f.changes, f.tombstones, nil)
	return f
}

func TestProcessQueue_ReplaysCreateAndSwapsPlaceholder(t *testing.T) {
	f := newProcessorFixture(t)
	f.remote.createFn = func(draft domain.EventDraft) (*RemoteEvent, error) {
		return &RemoteEvent{ID: "g-1", UpdatedAt: time.Now().UTC(), EventDraft: draft}, nil
	}

	create, err := f.queue.EnqueueCreate(context.Background(), f.accountID, "cal-1", testDraft("dentist"))
	require.NoError(t, err)
	tempID := create.EventID()

	result, err := f.processor.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Successful)

	// The placeholder and the confirmed event never coexist.
	placeholder, _ := f.events.FindByID(context.Background(), tempID)
	assert.Nil(t, placeholder)
	confirmed, _ := f.events.FindByID(context.Background(), "g-1")
	require.NotNil(t, confirmed)
	assert.Equal(t, "dentist", confirmed.Title())
	assert.False(t, confirmed.PendingSync())
	assert.Zero(t, f.changes.count())

	// A second pass finds an empty queue: the create replays at most once.
	result, err = f.processor.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Total)
	assert.Equal(t, 1, f.remote.createCalls)
}

func TestProcessQueue_ReplaysUpdate(t *testing.T) {
	f := newProcessorFixture(t)
	synced, err := domain.NewSyncedEvent("g-1", f.accountID, "cal-1", testDraft("standup"), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, f.events.Save(context.Background(), synced))
	_, err = f.queue.EnqueueUpdate(context.Background(), f.accountID, "cal-1", "g-1", testDraft("standup (moved)"))
	require.NoError(t, err)

	result, err := f.processor.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Successful)

	stored, _ := f.events.FindByID(context.Background(), "g-1")
	assert.Equal(t, "standup (moved)", stored.Title())
	assert.False(t, stored.PendingSync())
	assert.Zero(t, f.changes.count())
	assert.Equal(t, 1, f.remote.updateCalls)
}

func TestProcessQueue_ReplaysDelete(t *testing.T) {
	f := newProcessorFixture(t)
	synced, err := domain.NewSyncedEvent("g-1", f.accountID, "cal-1", testDraft("standup"), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, f.events.Save(context.Background(), synced))
	_, err = f.queue.EnqueueDelete(context.Background(), f.accountID, "cal-1", "g-1")
	require.NoError(t, err)

	result, err := f.processor.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, f.remote.deleteCalls)

	tombstone, _ := f.tombstones.FindByEvent(context.Background(), "g-1")
	assert.Nil(t, tombstone)
	assert.Zero(t, f.changes.count())
}

func TestProcessQueue_DispatchesInAdmissionOrder(t *testing.T) {
	f := newProcessorFixture(t)
	synced, err := domain.NewSyncedEvent("g-1", f.accountID, "cal-1", testDraft("standup"), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, f.events.Save(context.Background(), synced))

	_, err = f.queue.EnqueueCreate(context.Background(), f.accountID, "cal-1", testDraft("first"))
	require.NoError(t, err)
	_, err = f.queue.EnqueueUpdate(context.Background(), f.accountID, "cal-1", "g-1", testDraft("second"))
	require.NoError(t, err)
	_, err = f.queue.EnqueueDelete(context.Background(), f.accountID, "cal-1", "g-1")
	require.NoError(t, err)

	_, err = f.processor.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"create:first", "update:g-1", "delete:g-1"}, f.remote.ops)
}

func TestProcessQueue_FailureIsolatedAndRecorded(t *testing.T) {
	f := newProcessorFixture(t)
	f.remote.createFn = func(draft domain.EventDraft) (*RemoteEvent, error) {
		if draft.Title == "bad" {
			return nil, errors.New("invalid event payload")
		}
		return &RemoteEvent{ID: "remote-" + draft.Title, EventDraft: draft}, nil
	}

	bad, err := f.queue.EnqueueCreate(context.Background(), f.accountID, "cal-1", testDraft("bad"))
	require.NoError(t, err)
	_, err = f.queue.EnqueueCreate(context.Background(), f.accountID, "cal-1", testDraft("good"))
	require.NoError(t, err)

	result, err := f.processor.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)

	// The failed change stays queued with its retry bookkeeping updated.
	reloaded, _ := f.changes.FindByID(context.Background(), bad.ID())
	require.NotNil(t, reloaded)
	assert.Equal(t, 1, reloaded.RetryCount())
	assert.Contains(t, reloaded.LastError(), "invalid event payload")
	assert.Equal(t, 1, f.errorLog.count())

	// The sibling replayed despite the failure.
	confirmed, _ := f.events.FindByID(context.Background(), "remote-good")
	assert.NotNil(t, confirmed)
}

func TestProcessQueue_RetryCeilingStopsRemoteCalls(t *testing.T) {
	f := newProcessorFixture(t)
	f.remote.createFn = func(draft domain.EventDraft) (*RemoteEvent, error) {
		return nil, errors.New("provider rejects it")
	}

	change, err := f.queue.EnqueueCreate(context.Background(), f.accountID, "cal-1", testDraft("doomed"))
	require.NoError(t, err)

	for i := 1; i <= DefaultRetryCeiling; i++ {
		result, err := f.processor.ProcessQueue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Failed)
		reloaded, _ := f.changes.FindByID(context.Background(), change.ID())
		assert.Equal(t, i, reloaded.RetryCount())
	}

	reloaded, _ := f.changes.FindByID(context.Background(), change.ID())
	assert.Contains(t, reloaded.LastError(), "permanently failed after 3 attempts")

	// At the ceiling the change is reported failed without another attempt.
	result, err := f.processor.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Items, 1)
	assert.True(t, result.Items[0].Terminal)
	assert.Equal(t, DefaultRetryCeiling, f.remote.createCalls)
	assert.Equal(t, 1, f.changes.count())
}

func TestProcessQueue_ManualRetryReplaysAgain(t *testing.T) {
	f := newProcessorFixture(t)
	attempts := 0
	f.remote.createFn = func(draft domain.EventDraft) (*RemoteEvent, error) {
		attempts++
		if attempts <= DefaultRetryCeiling {
			return nil, errors.New("transient outage")
		}
		return &RemoteEvent{ID: "g-1", EventDraft: draft}, nil
	}

	change, err := f.queue.EnqueueCreate(context.Background(), f.accountID, "cal-1", testDraft("meeting"))
	require.NoError(t, err)

	for i := 0; i < DefaultRetryCeiling; i++ {
		_, err := f.processor.ProcessQueue(context.Background())
		require.NoError(t, err)
	}
	require.NoError(t, f.queue.Retry(context.Background(), change.ID()))

	result, err := f.processor.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
	assert.Zero(t, f.changes.count())
}

func TestProcessQueue_ParksConflictedChange(t *testing.T) {
	f := newProcessorFixture(t)
	synced, err := domain.NewSyncedEvent("g-1", f.accountID, "cal-1", testDraft("standup"), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, f.events.Save(context.Background(), synced))
	change, err := f.queue.EnqueueUpdate(context.Background(), f.accountID, "cal-1", "g-1", testDraft("standup (local)"))
	require.NoError(t, err)

	// A pull pass stashed both versions before the queue drained.
	event, _ := f.events.FindByID(context.Background(), "g-1")
	localSnap, err := json.Marshal(testDraft("standup (local)"))
	require.NoError(t, err)
	remoteSnap, err := json.Marshal(testDraft("standup (remote)"))
	require.NoError(t, err)
	require.NoError(t, event.MarkConflict(localSnap, remoteSnap))
	require.NoError(t, f.events.Save(context.Background(), event))

	// The queued update must not push either side while the conflict is open.
	result, err := f.processor.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, f.remote.updateCalls)

	reloaded, _ := f.changes.FindByID(context.Background(), change.ID())
	require.NotNil(t, reloaded)
	assert.Zero(t, reloaded.RetryCount())

	// Resolving in favor of local releases the change on the next pass.
	resolver := NewResolver(f.events, f.changes, f.tombstones, nil)
	require.NoError(t, resolver.KeepLocal(context.Background(), "g-1"))

	result, err = f.processor.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, f.remote.updateCalls)
	assert.Zero(t, f.changes.count())
}

func TestProcessQueue_StoreFailureAbortsPass(t *testing.T) {
	f := newProcessorFixture(t)
	change, err := f.queue.EnqueueCreate(context.Background(), f.accountID, "cal-1", testDraft("meeting"))
	require.NoError(t, err)

	// The remote accepts the create but the local swap cannot be persisted.
	f.events.saveErr = errors.New("disk full")

	_, err = f.processor.ProcessQueue(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStore))

	// A store failure is not the change's fault: no retry burned.
	reloaded, _ := f.changes.FindByID(context.Background(), change.ID())
	require.NotNil(t, reloaded)
	assert.Zero(t, reloaded.RetryCount())
}

func TestProcessQueue_LoadFailureIsStoreError(t *testing.T) {
	f := newProcessorFixture(t)
	f.changes.loadErr = errors.New("database is locked")

	_, err := f.processor.ProcessQueue(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStore))
}
