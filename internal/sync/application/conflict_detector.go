package application

import (
	"sort"
	"time"

	"github.com/skalley/caldrift/internal/sync/domain"
)

// ConflictKind classifies a detected conflict.
type ConflictKind string

const (
	// ConflictUpdateUpdate: both sides edited the event since the last sync.
	ConflictUpdateUpdate ConflictKind = "update-update"
	// ConflictDeleteUpdate: remote cancelled the event while a local edit
	// was outstanding.
	ConflictDeleteUpdate ConflictKind = "delete-update"
	// ConflictUpdateDelete: a local delete is queued while remote edited
	// the event.
	ConflictUpdateDelete ConflictKind = "update-delete"
)

// Detection is the outcome of a conflict check. Resolution is manual; the
// detector only classifies.
type Detection struct {
	HasConflict bool
	Kind        ConflictKind
	Reason      string
}

// Detect classifies the relationship between a local event and an incoming
// remote version. A conflict exists iff both sides were modified after
// lastSyncAt; local modification is either a newer updatedAt or an open
// pending change referencing the event. Cosmetically identical versions
// never conflict.
func Detect(local *domain.CalendarEvent, remote RemoteEvent, lastSyncAt time.Time, pending *domain.PendingChange) Detection {
	if local == nil {
		return Detection{}
	}

	localModified := pending != nil || local.UpdatedAt().After(lastSyncAt)
	remoteModified := remote.UpdatedAt.After(lastSyncAt)
	if !localModified || !remoteModified {
		return Detection{}
	}

	if remote.Status == domain.StatusCancelled {
		return Detection{
			HasConflict: true,
			Kind:        ConflictDeleteUpdate,
			Reason:      "remote cancelled the event while a local edit is unconfirmed",
		}
	}
	if pending != nil && pending.Operation() == domain.OpDelete {
		return Detection{
			HasConflict: true,
			Kind:        ConflictUpdateDelete,
			Reason:      "remote edited the event while a local delete is queued",
		}
	}
	if Equivalent(local.Draft(), remote.EventDraft) {
		// Both sides converged on the same content.
		return Detection{}
	}
	return Detection{
		HasConflict: true,
		Kind:        ConflictUpdateUpdate,
		Reason:      "local and remote edits diverged since the last sync",
	}
}

// Equivalent reports whether two drafts differ only cosmetically. It guards
// against false conflicts and keeps no-op syncs idempotent.
func Equivalent(a, b domain.EventDraft) bool {
	if a.Title != b.Title ||
		a.Description != b.Description ||
		a.Location != b.Location ||
		a.AllDay != b.AllDay {
		return false
	}
	if !a.StartAt.Equal(b.StartAt) || !a.EndAt.Equal(b.EndAt) {
		return false
	}
	if normalizeStatus(a.Status) != normalizeStatus(b.Status) {
		return false
	}
	if !equalStrings(a.Recurrence, b.Recurrence) {
		return false
	}
	return equalAttendees(a.Attendees, b.Attendees)
}

func normalizeStatus(s domain.EventStatus) domain.EventStatus {
	if s == "" {
		return domain.StatusConfirmed
	}
	return s
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// equalAttendees compares attendee lists order-insensitively. Sorted copies
// keep duplicate entries significant.
func equalAttendees(a, b []domain.Attendee) bool {
	if len(a) != len(b) {
		return false
	}
	as := sortedAttendees(a)
	bs := sortedAttendees(b)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func sortedAttendees(attendees []domain.Attendee) []domain.Attendee {
	out := make([]domain.Attendee, len(attendees))
	copy(out, attendees)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Email != out[j].Email {
			return out[i].Email < out[j].Email
		}
		return out[i].ResponseStatus < out[j].ResponseStatus
	})
	return out
}
