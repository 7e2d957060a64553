package database

import (
	"context"
	"time"
)

// IdentityReader provides read-only access to enrolled identities.
type IdentityReader interface {
	// ListIdentities returns a snapshot ordered by ID ascending.
	ListIdentities(ctx context.Context, filter IdentityFilter) ([]Identity, error)
	// GetIdentity returns nil if the identity does not exist.
	GetIdentity(ctx context.Context, id int64) (*Identity, error)
	// CountIdentities returns the number of enrolled identities.
	CountIdentities(ctx context.Context) (int, error)
	// ListGroups returns the distinct non-empty groups, sorted.
	ListGroups(ctx context.Context) ([]string, error)
}

// IdentityWriter adds enrollment on top of IdentityReader.
type IdentityWriter interface {
	IdentityReader

	// CreateIdentity inserts a new identity atomically and returns it with its ID.
	// Returns ErrDuplicateName when the normalized display name is taken.
	CreateIdentity(ctx context.Context, identity Identity) (Identity, error)
}

// NearestSearcher finds the closest identities to a query embedding.
// Results are ordered by distance ascending.
type NearestSearcher interface {
	SearchNearest(ctx context.Context, query Embedding, k int) ([]Identity, []float64, error)
}

// LedgerReader provides read access to presence events.
type LedgerReader interface {
	// EventFor returns the event for an identity on a day, or nil.
	EventFor(ctx context.Context, identityID int64, day Date) (*PresenceEvent, error)
	// EventsForDay returns all events for a day ordered by identity ID.
	EventsForDay(ctx context.Context, day Date) ([]PresenceEvent, error)
	// EventsForRange returns all events with from <= day <= to ordered by day, identity ID.
	EventsForRange(ctx context.Context, from, to Date) ([]PresenceEvent, error)
}

// Ledger is the append-only attendance store. Both writes are atomic
// check-and-insert operations keyed by (identityID, day).
type Ledger interface {
	LedgerReader

	// MarkPresent inserts a PRESENT event unless any event exists for the key.
	// created reports whether this call wrote the event.
	MarkPresent(ctx context.Context, identityID int64, day Date, at time.Time) (created bool, err error)

	// MarkAbsent inserts an ABSENT sweep event unless any event exists for the key.
	MarkAbsent(ctx context.Context, identityID int64, day Date, at time.Time) (created bool, err error)
}
