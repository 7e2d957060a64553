// Package mock provides in-memory implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// MockIdentityStore is an in-memory database.IdentityWriter.
type MockIdentityStore struct {
	mu         sync.RWMutex
	identities map[int64]*database.Identity
	nextID     int64

	// Error injection
	ListError   error
	GetError    error
	CreateError error
}

// NewMockIdentityStore creates an empty identity store.
func NewMockIdentityStore() *MockIdentityStore {
	return &MockIdentityStore{
		identities: make(map[int64]*database.Identity),
		nextID:     1,
	}
}

// AddIdentity stores an identity as-is. A zero ID gets the next free ID.
func (m *MockIdentityStore) AddIdentity(identity database.Identity) database.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	if identity.ID == 0 {
		identity.ID = m.nextID
	}
	if identity.ID >= m.nextID {
		m.nextID = identity.ID + 1
	}
	m.identities[identity.ID] = &identity
	return identity
}

// ListIdentities returns matching identities ordered by ID.
func (m *MockIdentityStore) ListIdentities(ctx context.Context, filter database.IdentityFilter) ([]database.Identity, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.Identity
	for _, id := range m.identities {
		if filter.Matches(id) {
			out = append(out, *id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetIdentity returns the identity or nil.
func (m *MockIdentityStore) GetIdentity(ctx context.Context, id int64) (*database.Identity, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	found, ok := m.identities[id]
	if !ok {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

// CountIdentities returns the number of stored identities.
func (m *MockIdentityStore) CountIdentities(ctx context.Context) (int, error) {
	if m.ListError != nil {
		return 0, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities), nil
}

// ListGroups returns distinct non-empty groups.
func (m *MockIdentityStore) ListGroups(ctx context.Context) ([]string, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var groups []string
	for _, id := range m.identities {
		if id.Group != "" && !slices.Contains(groups, id.Group) {
			groups = append(groups, id.Group)
		}
	}
	sort.Strings(groups)
	return groups, nil
}

// CreateIdentity enrolls a new identity, enforcing unique normalized names.
func (m *MockIdentityStore) CreateIdentity(ctx context.Context, identity database.Identity) (database.Identity, error) {
	if m.CreateError != nil {
		return database.Identity{}, m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := facematch.NormalizeDisplayName(identity.DisplayName)
	for _, existing := range m.identities {
		if facematch.NormalizeDisplayName(existing.DisplayName) == key {
			return database.Identity{}, database.ErrDuplicateName
		}
	}
	identity.ID = m.nextID
	m.nextID++
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}
	m.identities[identity.ID] = &identity
	return identity, nil
}

// SearchNearest performs an exact scan, so it doubles as a NearestSearcher.
func (m *MockIdentityStore) SearchNearest(ctx context.Context, query database.Embedding, k int) ([]database.Identity, []float64, error) {
	all, err := m.ListIdentities(ctx, database.IdentityFilter{})
	if err != nil {
		return nil, nil, err
	}
	distances := make(map[int64]float64, len(all))
	for _, id := range all {
		distances[id.ID] = database.CosineDistance(query, id.Embedding)
	}
	sort.SliceStable(all, func(i, j int) bool { return distances[all[i].ID] < distances[all[j].ID] })
	if len(all) > k {
		all = all[:k]
	}
	out := make([]float64, len(all))
	for i, id := range all {
		out[i] = distances[id.ID]
	}
	return all, out, nil
}

type ledgerKey struct {
	identityID int64
	day        database.Date
}

// MockLedger is an in-memory database.Ledger. A single mutex makes each
// check-and-insert atomic, mirroring the unique (identity, day) key in SQL.
type MockLedger struct {
	mu     sync.Mutex
	events map[ledgerKey]database.PresenceEvent

	// Error injection
	MarkPresentError error
	MarkAbsentError  error
	ReadError        error

	// FailAbsentAfter makes MarkAbsent fail once this many absences were written (0 disables).
	FailAbsentAfter int
	absentWrites    int

	// Call counters
	MarkPresentCalls int
	MarkAbsentCalls  int
}

// NewMockLedger creates an empty ledger.
func NewMockLedger() *MockLedger {
	return &MockLedger{events: make(map[ledgerKey]database.PresenceEvent)}
}

// AddEvent stores an event directly, bypassing the write preconditions.
func (m *MockLedger) AddEvent(event database.PresenceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	m.events[ledgerKey{event.IdentityID, event.Day}] = event
}

// Events returns all events ordered by day and identity.
func (m *MockLedger) Events() []database.PresenceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked(func(database.PresenceEvent) bool { return true })
}

func (m *MockLedger) sortedLocked(keep func(database.PresenceEvent) bool) []database.PresenceEvent {
	var out []database.PresenceEvent
	for _, e := range m.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Day.Compare(out[j].Day); c != 0 {
			return c < 0
		}
		return out[i].IdentityID < out[j].IdentityID
	})
	return out
}

func (m *MockLedger) insert(identityID int64, day database.Date, at time.Time, status database.Status, source database.Source) bool {
	key := ledgerKey{identityID, day}
	if _, exists := m.events[key]; exists {
		return false
	}
	m.events[key] = database.PresenceEvent{
		ID:         uuid.New().String(),
		IdentityID: identityID,
		Day:        day,
		Timestamp:  at.UTC(),
		Status:     status,
		Source:     source,
	}
	return true
}

// MarkPresent inserts a PRESENT event unless any event exists for the key.
func (m *MockLedger) MarkPresent(ctx context.Context, identityID int64, day database.Date, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarkPresentCalls++
	if m.MarkPresentError != nil {
		return false, m.MarkPresentError
	}
	return m.insert(identityID, day, at, database.StatusPresent, database.SourceLiveMatch), nil
}

// MarkAbsent inserts an ABSENT event unless any event exists for the key.
func (m *MockLedger) MarkAbsent(ctx context.Context, identityID int64, day database.Date, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarkAbsentCalls++
	if m.MarkAbsentError != nil {
		return false, m.MarkAbsentError
	}
	if m.FailAbsentAfter > 0 && m.absentWrites >= m.FailAbsentAfter {
		return false, database.ErrLedgerUnavailable
	}
	created := m.insert(identityID, day, at, database.StatusAbsent, database.SourceSweep)
	if created {
		m.absentWrites++
	}
	return created, nil
}

// EventFor returns the event for the key or nil.
func (m *MockLedger) EventFor(ctx context.Context, identityID int64, day database.Date) (*database.PresenceEvent, error) {
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[ledgerKey{identityID, day}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// EventsForDay returns events for one day.
func (m *MockLedger) EventsForDay(ctx context.Context, day database.Date) ([]database.PresenceEvent, error) {
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked(func(e database.PresenceEvent) bool { return e.Day == day }), nil
}

// EventsForRange returns events with from <= day <= to.
func (m *MockLedger) EventsForRange(ctx context.Context, from, to database.Date) ([]database.PresenceEvent, error) {
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked(func(e database.PresenceEvent) bool {
		return !e.Day.Before(from) && !e.Day.After(to)
	}), nil
}
