package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Domain errors for Calendar validation.
var (
	ErrEmptyCalendarID = errors.New("calendar ID cannot be empty")
	ErrEmptyName       = errors.New("calendar name cannot be empty")
	ErrEmptyAccountID  = errors.New("account ID cannot be empty")
)

// Calendar represents one remote calendar owned by an account.
// It is keyed by the remote calendar ID within its account; the visible
// flag gates inclusion in account-wide sync.
type Calendar struct {
	id        string // remote calendar ID (e.g. "primary", "work@example.com")
	accountID uuid.UUID
	name      string
	color     string
	visible   bool
	primary   bool
	createdAt time.Time
	updatedAt time.Time
}

// NewCalendar creates a calendar discovered on the remote account.
func NewCalendar(accountID uuid.UUID, id, name string) (*Calendar, error) {
	if accountID == uuid.Nil {
		return nil, ErrEmptyAccountID
	}
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyCalendarID
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}
	now := time.Now().UTC()
	return &Calendar{
		id:        id,
		accountID: accountID,
		name:      name,
		visible:   true,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Getters
func (c *Calendar) ID() string           { return c.id }
func (c *Calendar) AccountID() uuid.UUID { return c.accountID }
func (c *Calendar) Name() string         { return c.name }
func (c *Calendar) Color() string        { return c.color }
func (c *Calendar) Visible() bool        { return c.visible }
func (c *Calendar) Primary() bool        { return c.primary }
func (c *Calendar) CreatedAt() time.Time { return c.createdAt }
func (c *Calendar) UpdatedAt() time.Time { return c.updatedAt }

// SetName updates the calendar display name.
func (c *Calendar) SetName(name string) {
	if name != "" && c.name != name {
		c.name = name
		c.touch()
	}
}

// SetColor updates the display color.
func (c *Calendar) SetColor(color string) {
	if c.color != color {
		c.color = color
		c.touch()
	}
}

// SetVisible toggles inclusion of this calendar in sync passes.
func (c *Calendar) SetVisible(visible bool) {
	if c.visible != visible {
		c.visible = visible
		c.touch()
	}
}

// SetPrimary marks this calendar as the account's primary calendar.
func (c *Calendar) SetPrimary(primary bool) {
	if c.primary != primary {
		c.primary = primary
		c.touch()
	}
}

func (c *Calendar) touch() {
	c.updatedAt = time.Now().UTC()
}

// RehydrateCalendar recreates a calendar from persisted data.
func RehydrateCalendar(
	id string,
	accountID uuid.UUID,
	name, color string,
	visible, primary bool,
	createdAt, updatedAt time.Time,
) *Calendar {
	return &Calendar{
		id:        id,
		accountID: accountID,
		name:      name,
		color:     color,
		visible:   visible,
		primary:   primary,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

// CalendarRepository defines the interface for calendar persistence.
type CalendarRepository interface {
	// Save persists a calendar (create or update).
	Save(ctx context.Context, calendar *Calendar) error

	// FindByAccountAndID finds a calendar by account and remote ID.
	FindByAccountAndID(ctx context.Context, accountID uuid.UUID, id string) (*Calendar, error)

	// FindByAccount finds all calendars for an account.
	FindByAccount(ctx context.Context, accountID uuid.UUID) ([]*Calendar, error)

	// FindVisibleByAccount finds calendars included in sync for an account.
	FindVisibleByAccount(ctx context.Context, accountID uuid.UUID) ([]*Calendar, error)

	// Delete removes a calendar.
	Delete(ctx context.Context, accountID uuid.UUID, id string) error
}
