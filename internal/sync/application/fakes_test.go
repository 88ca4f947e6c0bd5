package application

// In-memory fakes shared by the application tests.

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/google/uuid"
)

type memEventRepo struct {
	mu      sync.Mutex
	events  map[string]*domain.CalendarEvent
	saveErr error
	findErr error
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{events: make(map[string]*domain.CalendarEvent)}
}

func (r *memEventRepo) Save(ctx context.Context, event *domain.CalendarEvent) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event.ID()] = event
	return nil
}

func (r *memEventRepo) FindByID(ctx context.Context, id string) (*domain.CalendarEvent, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[id], nil
}

func (r *memEventRepo) FindByCalendar(ctx context.Context, accountID uuid.UUID, calendarID string) ([]*domain.CalendarEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.CalendarEvent
	for _, e := range r.events {
		if e.AccountID() == accountID && e.CalendarID() == calendarID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memEventRepo) FindOutsideWindow(ctx context.Context, accountID uuid.UUID, calendarID string, from, to time.Time) ([]*domain.CalendarEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.CalendarEvent
	for _, e := range r.events {
		if e.AccountID() != accountID || e.CalendarID() != calendarID {
			continue
		}
		if e.StartAt().Before(from) || e.StartAt().After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memEventRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, id)
	return nil
}

func (r *memEventRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type memChangeRepo struct {
	mu       sync.Mutex
	changes  map[uuid.UUID]*domain.PendingChange
	nextSeq  int64
	seqs     map[uuid.UUID]int64
	loads    int
	loadErr  error
}

func newMemChangeRepo() *memChangeRepo {
	return &memChangeRepo{
		changes: make(map[uuid.UUID]*domain.PendingChange),
		seqs:    make(map[uuid.UUID]int64),
	}
}

func (r *memChangeRepo) Save(ctx context.Context, change *domain.PendingChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seqs[change.ID()]; !ok {
		r.nextSeq++
		r.seqs[change.ID()] = r.nextSeq
	}
	r.changes[change.ID()] = change
	return nil
}

func (r *memChangeRepo) ordered() []*domain.PendingChange {
	out := make([]*domain.PendingChange, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return r.seqs[out[i].ID()] < r.seqs[out[j].ID()]
	})
	return out
}

func (r *memChangeRepo) FindAllOrdered(ctx context.Context) ([]*domain.PendingChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return r.ordered(), nil
}

func (r *memChangeRepo) FindByEvent(ctx context.Context, eventID string) ([]*domain.PendingChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PendingChange
	for _, c := range r.ordered() {
		if c.EventID() == eventID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memChangeRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.PendingChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changes[id], nil
}

func (r *memChangeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.changes, id)
	return nil
}

func (r *memChangeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

type memTombstoneRepo struct {
	mu         sync.Mutex
	tombstones map[string]*domain.Tombstone
}

func newMemTombstoneRepo() *memTombstoneRepo {
	return &memTombstoneRepo{tombstones: make(map[string]*domain.Tombstone)}
}

func (r *memTombstoneRepo) Save(ctx context.Context, t *domain.Tombstone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tombstones[t.EventID()] = t
	return nil
}

func (r *memTombstoneRepo) FindByEvent(ctx context.Context, eventID string) (*domain.Tombstone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tombstones[eventID], nil
}

func (r *memTombstoneRepo) FindByAccount(ctx context.Context, accountID uuid.UUID) ([]*domain.Tombstone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Tombstone
	for _, t := range r.tombstones {
		if t.AccountID() == accountID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memTombstoneRepo) Delete(ctx context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tombstones, eventID)
	return nil
}

type memMetadataRepo struct {
	mu      sync.Mutex
	rows    map[string]*domain.SyncMetadata
	saveErr error
}

func newMemMetadataRepo() *memMetadataRepo {
	return &memMetadataRepo{rows: make(map[string]*domain.SyncMetadata)}
}

func metaKey(accountID uuid.UUID, calendarID string) string {
	return accountID.String() + "/" + calendarID
}

func (r *memMetadataRepo) Save(ctx context.Context, m *domain.SyncMetadata) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[metaKey(m.AccountID(), m.CalendarID())] = m
	return nil
}

func (r *memMetadataRepo) FindByAccountAndCalendar(ctx context.Context, accountID uuid.UUID, calendarID string) (*domain.SyncMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[metaKey(accountID, calendarID)], nil
}

func (r *memMetadataRepo) FindByAccount(ctx context.Context, accountID uuid.UUID) ([]*domain.SyncMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SyncMetadata
	for _, m := range r.rows {
		if m.AccountID() == accountID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMetadataRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, m := range r.rows {
		if m.ID() == id {
			delete(r.rows, k)
		}
	}
	return nil
}

type memErrorLogRepo struct {
	mu      sync.Mutex
	entries []*domain.ErrorEntry
}

func newMemErrorLogRepo() *memErrorLogRepo { return &memErrorLogRepo{} }

func (r *memErrorLogRepo) Append(ctx context.Context, entry *domain.ErrorEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memErrorLogRepo) FindRecent(ctx context.Context, limit int) ([]*domain.ErrorEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit > len(r.entries) {
		limit = len(r.entries)
	}
	out := make([]*domain.ErrorEntry, 0, limit)
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

func (r *memErrorLogRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: make(map[uuid.UUID]*domain.Account)}
}

func (r *memAccountRepo) Save(ctx context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.ID()] = a
	return nil
}

func (r *memAccountRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id], nil
}

func (r *memAccountRepo) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email() == email {
			return a, nil
		}
	}
	return nil, nil
}

func (r *memAccountRepo) FindAll(ctx context.Context) ([]*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Account
	for _, a := range r.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (r *memAccountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, id)
	return nil
}

type memCalendarRepo struct {
	mu        sync.Mutex
	calendars []*domain.Calendar
}

func newMemCalendarRepo() *memCalendarRepo { return &memCalendarRepo{} }

func (r *memCalendarRepo) Save(ctx context.Context, c *domain.Calendar) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.calendars {
		if existing.AccountID() == c.AccountID() && existing.ID() == c.ID() {
			r.calendars[i] = c
			return nil
		}
	}
	r.calendars = append(r.calendars, c)
	return nil
}

func (r *memCalendarRepo) FindByAccountAndID(ctx context.Context, accountID uuid.UUID, id string) (*domain.Calendar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calendars {
		if c.AccountID() == accountID && c.ID() == id {
			return c, nil
		}
	}
	return nil, nil
}

func (r *memCalendarRepo) FindByAccount(ctx context.Context, accountID uuid.UUID) ([]*domain.Calendar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Calendar
	for _, c := range r.calendars {
		if c.AccountID() == accountID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memCalendarRepo) FindVisibleByAccount(ctx context.Context, accountID uuid.UUID) ([]*domain.Calendar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Calendar
	for _, c := range r.calendars {
		if c.AccountID() == accountID && c.Visible() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memCalendarRepo) Delete(ctx context.Context, accountID uuid.UUID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.calendars {
		if c.AccountID() == accountID && c.ID() == id {
			r.calendars = append(r.calendars[:i], r.calendars[i+1:]...)
			return nil
		}
	}
	return nil
}

// fakeRemote scripts provider behavior per operation and counts calls.
type fakeRemote struct {
	mu          sync.Mutex
	listFn      func(q ListQuery) (*EventPage, error)
	createFn    func(draft domain.EventDraft) (*RemoteEvent, error)
	updateFn    func(eventID string, draft domain.EventDraft) (*RemoteEvent, error)
	deleteFn    func(eventID string) error
	listCalls   int
	createCalls int
	updateCalls int
	deleteCalls int
	ops         []string // chronological op log, e.g. "create:ev-1"
}

func (f *fakeRemote) record(op string) {
	f.ops = append(f.ops, op)
}

func (f *fakeRemote) ListEvents(ctx context.Context, accountID uuid.UUID, calendarID string, q ListQuery) (*EventPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.record("list:" + calendarID)
	if f.listFn == nil {
		return &EventPage{}, nil
	}
	return f.listFn(q)
}

func (f *fakeRemote) CreateEvent(ctx context.Context, accountID uuid.UUID, calendarID string, draft domain.EventDraft) (*RemoteEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.record("create:" + draft.Title)
	if f.createFn == nil {
		return &RemoteEvent{ID: "remote-" + draft.Title, EventDraft: draft}, nil
	}
	return f.createFn(draft)
}

func (f *fakeRemote) UpdateEvent(ctx context.Context, accountID uuid.UUID, calendarID, eventID string, draft domain.EventDraft) (*RemoteEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	f.record("update:" + eventID)
	if f.updateFn == nil {
		return &RemoteEvent{ID: eventID, EventDraft: draft}, nil
	}
	return f.updateFn(eventID, draft)
}

func (f *fakeRemote) DeleteEvent(ctx context.Context, accountID uuid.UUID, calendarID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	f.record("delete:" + eventID)
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(eventID)
}
