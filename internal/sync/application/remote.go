package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/google/uuid"
)

// ErrSyncTokenExpired signals that the provider rejected a stale incremental
// cursor. The engine falls back to a full windowed listing when it sees this.
var ErrSyncTokenExpired = errors.New("sync token expired")

// ErrStore marks a local-store failure. Store failures are fatal to the
// current operation and are never auto-retried.
var ErrStore = errors.New("local store failure")

// RemoteEvent is one event as returned by a provider listing or mutation.
type RemoteEvent struct {
	ID        string
	UpdatedAt time.Time
	domain.EventDraft
}

// ListQuery bounds a provider listing. SyncToken requests incremental
// changes; PageToken continues a paginated response.
type ListQuery struct {
	TimeMin   time.Time
	TimeMax   time.Time
	SyncToken string
	PageToken string
}

// EventPage is one page of a provider listing.
type EventPage struct {
	Items         []RemoteEvent
	NextPageToken string
	NextSyncToken string
}

// RemoteClient is the port to a provider's calendar API, scoped per account.
// Timeout and backoff for individual calls belong to the implementation.
type RemoteClient interface {
	// ListEvents lists events for a calendar. With a sync token it returns
	// only subsequent changes (cancellations included); otherwise it
	// returns the full listing bounded by the query window. An expired
	// token yields ErrSyncTokenExpired.
	ListEvents(ctx context.Context, accountID uuid.UUID, calendarID string, q ListQuery) (*EventPage, error)

	// CreateEvent creates an event remotely and returns the confirmed
	// version carrying the remote-assigned ID.
	CreateEvent(ctx context.Context, accountID uuid.UUID, calendarID string, draft domain.EventDraft) (*RemoteEvent, error)

	// UpdateEvent updates an event remotely and returns the confirmed version.
	UpdateEvent(ctx context.Context, accountID uuid.UUID, calendarID, eventID string, draft domain.EventDraft) (*RemoteEvent, error)

	// DeleteEvent deletes an event remotely. Deleting an already-absent
	// event is not an error.
	DeleteEvent(ctx context.Context, accountID uuid.UUID, calendarID, eventID string) error
}

// Registry routes remote calls to the client registered for the owning
// account's provider. It implements RemoteClient itself so the engine and
// processor stay provider-agnostic.
type Registry struct {
	accounts domain.AccountRepository
	clients  map[string]RemoteClient
}

// NewRegistry creates an empty provider registry.
func NewRegistry(accounts domain.AccountRepository) *Registry {
	return &Registry{
		accounts: accounts,
		clients:  make(map[string]RemoteClient),
	}
}

// Register binds a provider name to a client.
func (r *Registry) Register(provider string, client RemoteClient) {
	r.clients[provider] = client
}

func (r *Registry) resolve(ctx context.Context, accountID uuid.UUID) (RemoteClient, error) {
	account, err := r.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading account: %v", ErrStore, err)
	}
	if account == nil {
		return nil, fmt.Errorf("unknown account %s", accountID)
	}
	client, ok := r.clients[account.Provider()]
	if !ok {
		return nil, fmt.Errorf("no client registered for provider %q", account.Provider())
	}
	return client, nil
}

// ListEvents implements RemoteClient.
func (r *Registry) ListEvents(ctx context.Context, accountID uuid.UUID, calendarID string, q ListQuery) (*EventPage, error) {
	client, err := r.resolve(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return client.ListEvents(ctx, accountID, calendarID, q)
}

// CreateEvent implements RemoteClient.
func (r *Registry) CreateEvent(ctx context.Context, accountID uuid.UUID, calendarID string, draft domain.EventDraft) (*RemoteEvent, error) {
	client, err := r.resolve(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return client.CreateEvent(ctx, accountID, calendarID, draft)
}

// UpdateEvent implements RemoteClient.
func (r *Registry) UpdateEvent(ctx context.Context, accountID uuid.UUID, calendarID, eventID string, draft domain.EventDraft) (*RemoteEvent, error) {
	client, err := r.resolve(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return client.UpdateEvent(ctx, accountID, calendarID, eventID, draft)
}

// DeleteEvent implements RemoteClient.
func (r *Registry) DeleteEvent(ctx context.Context, accountID uuid.UUID, calendarID, eventID string) error {
	client, err := r.resolve(ctx, accountID)
	if err != nil {
		return err
	}
	return client.DeleteEvent(ctx, accountID, calendarID, eventID)
}
