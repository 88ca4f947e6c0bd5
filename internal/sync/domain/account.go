package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	sharedDomain "github.com/skalley/caldrift/internal/shared/domain"
	"github.com/google/uuid"
)

// Domain errors for Account validation.
var (
	ErrEmptyEmail      = errors.New("account email cannot be empty")
	ErrEmptyProvider   = errors.New("account provider cannot be empty")
)

// Account represents one remote calendar identity mirrored locally.
// It is created on successful authentication; removing it cascades to
// owned calendars, events, sync metadata and queued changes.
type Account struct {
	sharedDomain.BaseEntity
	email                string
	provider             string // "google", "caldav", ...
	credential           []byte // opaque encrypted credential material
	credentialExpiresAt  time.Time
	color                string
}

// NewAccount creates a new account for a remote identity.
func NewAccount(email, provider string, credential []byte, expiresAt time.Time) (*Account, error) {
	if strings.TrimSpace(email) == "" {
		return nil, ErrEmptyEmail
	}
	if strings.TrimSpace(provider) == "" {
		return nil, ErrEmptyProvider
	}
	return &Account{
		BaseEntity:          sharedDomain.NewBaseEntity(),
		email:               email,
		provider:            provider,
		credential:          credential,
		credentialExpiresAt: expiresAt,
	}, nil
}

// Getters
func (a *Account) Email() string                  { return a.email }
func (a *Account) Provider() string               { return a.provider }
func (a *Account) Credential() []byte             { return a.credential }
func (a *Account) CredentialExpiresAt() time.Time { return a.credentialExpiresAt }
func (a *Account) Color() string                  { return a.color }

// CredentialExpired reports whether the stored credential is past its expiry.
func (a *Account) CredentialExpired(now time.Time) bool {
	return !a.credentialExpiresAt.IsZero() && now.After(a.credentialExpiresAt)
}

// SetCredential replaces the credential material after a refresh.
func (a *Account) SetCredential(credential []byte, expiresAt time.Time) {
	a.credential = credential
	a.credentialExpiresAt = expiresAt
	a.Touch()
}

// SetColor updates the display color.
func (a *Account) SetColor(color string) {
	if a.color != color {
		a.color = color
		a.Touch()
	}
}

// RehydrateAccount recreates an account from persisted data.
func RehydrateAccount(
	id uuid.UUID,
	email, provider string,
	credential []byte,
	credentialExpiresAt time.Time,
	color string,
	createdAt, updatedAt time.Time,
) *Account {
	return &Account{
		BaseEntity:          sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		email:               email,
		provider:            provider,
		credential:          credential,
		credentialExpiresAt: credentialExpiresAt,
		color:               color,
	}
}

// AccountRepository defines the interface for account persistence.
type AccountRepository interface {
	// Save persists an account (create or update).
	Save(ctx context.Context, account *Account) error

	// FindByID finds an account by ID. Returns nil when absent.
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// FindByEmail finds an account by email. Returns nil when absent.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// FindAll returns every known account.
	FindAll(ctx context.Context) ([]*Account, error)

	// Delete removes an account; owned rows cascade.
	Delete(ctx context.Context, id uuid.UUID) error
}
