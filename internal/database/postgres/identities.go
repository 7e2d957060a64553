package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

const pqUniqueViolation = "23505"

// IdentityRepository provides PostgreSQL-backed identity storage with optional in-memory HNSW index.
type IdentityRepository struct {
	pool   *Pool
	dim    int
	logger *zap.Logger

	hnswIndex     *database.IdentityIndex
	hnswEnabled   bool
	hnswIndexPath string // Path to persist HNSW index (optional)
	hnswMu        sync.RWMutex

	// Enrollments by other processes only reach the index through syncs.
	hnswSyncMu    sync.Mutex
	hnswCheckedAt atomic.Int64 // unix nanos
	hnswSyncEvery time.Duration
	now           func() time.Time
}

// NewIdentityRepository creates a new PostgreSQL identity repository.
// Embeddings read or written are checked against dim.
func NewIdentityRepository(pool *Pool, dim int, logger *zap.Logger) *IdentityRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityRepository{
		pool:          pool,
		dim:           dim,
		logger:        logger,
		hnswSyncEvery: database.HNSWSyncInterval,
		now:           time.Now,
	}
}

const identityColumns = `id, display_name, category, group_name, embedding, created_at`

func (r *IdentityRepository) scanIdentity(scanner interface{ Scan(...any) error }) (database.Identity, error) {
	var (
		id       database.Identity
		category string
		vec      pgvector.Vector
	)
	if err := scanner.Scan(&id.ID, &id.DisplayName, &category, &id.Group, &vec, &id.CreatedAt); err != nil {
		return id, fmt.Errorf("scan identity: %w", err)
	}
	id.Category = database.Category(category)
	id.Embedding = database.Embedding(vec.Slice())
	if err := id.Embedding.Validate(r.dim); err != nil {
		return id, fmt.Errorf("identity %d: %w", id.ID, err)
	}
	return id, nil
}

// ListIdentities returns the identities passing filter, ordered by id.
func (r *IdentityRepository) ListIdentities(ctx context.Context, filter database.IdentityFilter) ([]database.Identity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE ($1 = '' OR category = $1) AND ($2 = '' OR group_name = $2)
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, string(filter.Category), filter.Group)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var identities []database.Identity
	for rows.Next() {
		id, err := r.scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// GetIdentity returns nil when no identity has the given id.
func (r *IdentityRepository) GetIdentity(ctx context.Context, id int64) (*database.Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	found, err := r.scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &found, nil
}

// CountIdentities returns the number of enrolled identities.
func (r *IdentityRepository) CountIdentities(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// ListGroups returns the distinct non-empty groups.
func (r *IdentityRepository) ListGroups(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, "SELECT DISTINCT group_name FROM identities WHERE group_name <> '' ORDER BY group_name")
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}

// CreateIdentity enrolls a new identity in a single insert. The unique
// name_key column rejects names that normalize to an existing one.
func (r *IdentityRepository) CreateIdentity(ctx context.Context, identity database.Identity) (database.Identity, error) {
	if err := identity.Embedding.Validate(r.dim); err != nil {
		return database.Identity{}, err
	}

	query := `
		INSERT INTO identities (display_name, name_key, category, group_name, embedding, dim)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		identity.DisplayName,
		facematch.NormalizeDisplayName(identity.DisplayName),
		string(identity.Category),
		identity.Group,
		pgvector.NewVector([]float32(identity.Embedding)),
		identity.Embedding.Dim(),
	).Scan(&identity.ID, &identity.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return database.Identity{}, fmt.Errorf("%w: %s", database.ErrDuplicateName, identity.DisplayName)
		}
		return database.Identity{}, fmt.Errorf("insert identity: %w", err)
	}

	r.hnswMu.RLock()
	if r.hnswEnabled && r.hnswIndex != nil {
		r.hnswIndex.Add(identity)
	}
	r.hnswMu.RUnlock()

	return identity, nil
}

// SearchNearest returns up to k identities closest to query.
// Uses in-memory HNSW index if enabled, otherwise falls back to PostgreSQL.
// Distances are always exact cosine distances.
func (r *IdentityRepository) SearchNearest(ctx context.Context, query database.Embedding, k int) ([]database.Identity, []float64, error) {
	if err := query.Validate(r.dim); err != nil {
		return nil, nil, err
	}

	r.hnswMu.RLock()
	hnswEnabled := r.hnswEnabled && r.hnswIndex != nil
	r.hnswMu.RUnlock()

	if hnswEnabled {
		r.syncHNSWIfDue(ctx)
		r.hnswMu.RLock()
		defer r.hnswMu.RUnlock()
		found, distances, err := r.hnswIndex.Search(query, k)
		if err != nil {
			return nil, nil, fmt.Errorf("HNSW search: %w", err)
		}
		return found, distances, nil
	}

	sqlQuery := `
		SELECT ` + identityColumns + `
		FROM identities
		ORDER BY embedding <=> $1, id
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, sqlQuery, pgvector.NewVector([]float32(query)), k)
	if err != nil {
		return nil, nil, fmt.Errorf("query nearest identities: %w", err)
	}
	defer rows.Close()

	var (
		found     []database.Identity
		distances []float64
	)
	for rows.Next() {
		id, err := r.scanIdentity(rows)
		if err != nil {
			return nil, nil, err
		}
		found = append(found, id)
		distances = append(distances, database.CosineDistance(query, id.Embedding))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate nearest identities: %w", err)
	}
	return found, distances, nil
}

func (r *IdentityRepository) identityStats(ctx context.Context) (count, maxID int64, err error) {
	err = r.pool.QueryRow(ctx, "SELECT COUNT(*), COALESCE(MAX(id), 0) FROM identities").Scan(&count, &maxID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get identity stats: %w", err)
	}
	return count, maxID, nil
}

// tryLoadIndex loads a persisted index when its metadata matches the database.
func (r *IdentityRepository) tryLoadIndex(indexPath string, count, maxID int64) bool {
	metadata, err := database.LoadHNSWMetadata(indexPath)
	if err != nil {
		return false
	}
	if metadata.IdentityCount != count || metadata.MaxIdentityID != maxID {
		r.logger.Info("persisted HNSW index is stale, rebuilding",
			zap.Int64("index_count", metadata.IdentityCount),
			zap.Int64("db_count", count))
		return false
	}
	index := database.NewIdentityIndex()
	if err := index.Load(indexPath); err != nil {
		r.logger.Warn("failed to load HNSW index", zap.Error(err))
		return false
	}
	if held, heldMax := index.Stats(); held != count || heldMax != maxID {
		r.logger.Info("persisted HNSW index does not hold every identity, rebuilding",
			zap.Int64("index_count", held),
			zap.Int64("db_count", count))
		return false
	}
	r.hnswIndex = index
	return true
}

// EnableHNSW builds or loads the in-memory HNSW index.
func (r *IdentityRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()

	r.hnswIndexPath = indexPath

	count, maxID, err := r.identityStats(ctx)
	if err != nil {
		return err
	}

	if indexPath != "" && r.tryLoadIndex(indexPath, count, maxID) {
		r.hnswEnabled = true
		r.markHNSWChecked()
		return nil
	}

	identities, err := r.ListIdentities(ctx, database.IdentityFilter{})
	if err != nil {
		return fmt.Errorf("failed to load identities: %w", err)
	}

	r.hnswIndex = database.NewIdentityIndex()
	r.hnswIndex.Build(identities)

	if indexPath != "" && len(identities) > 0 {
		if err := r.hnswIndex.Save(indexPath, indexMetadata(r.hnswIndex)); err != nil {
			r.logger.Warn("failed to save HNSW index to disk", zap.Error(err))
		}
	}

	r.hnswEnabled = true
	r.markHNSWChecked()
	return nil
}

func indexMetadata(index *database.IdentityIndex) database.HNSWIndexMetadata {
	count, maxID := index.Stats()
	return database.HNSWIndexMetadata{IdentityCount: count, MaxIdentityID: maxID}
}

func (r *IdentityRepository) markHNSWChecked() {
	r.hnswCheckedAt.Store(r.now().UnixNano())
}

// syncHNSWIfDue runs SyncHNSW at most once per sync interval. Concurrent
// searches skip the check instead of waiting for it.
func (r *IdentityRepository) syncHNSWIfDue(ctx context.Context) {
	if !r.hnswSyncMu.TryLock() {
		return
	}
	defer r.hnswSyncMu.Unlock()

	now := r.now()
	if now.Sub(time.Unix(0, r.hnswCheckedAt.Load())) < r.hnswSyncEvery {
		return
	}
	r.hnswCheckedAt.Store(now.UnixNano())
	if err := r.SyncHNSW(ctx); err != nil {
		r.logger.Warn("HNSW index sync failed, searching the current index", zap.Error(err))
	}
}

// SyncHNSW brings the in-memory index in line with the identities table.
// Identities missing from the index are added; if the index holds an id the
// table no longer has, it is rebuilt.
func (r *IdentityRepository) SyncHNSW(ctx context.Context) error {
	r.hnswMu.RLock()
	index := r.hnswIndex
	enabled := r.hnswEnabled
	r.hnswMu.RUnlock()
	if !enabled || index == nil {
		return nil
	}

	count, maxID, err := r.identityStats(ctx)
	if err != nil {
		return err
	}
	indexCount, indexMaxID := index.Stats()
	if indexCount == count && indexMaxID == maxID {
		return nil
	}

	identities, err := r.ListIdentities(ctx, database.IdentityFilter{})
	if err != nil {
		return fmt.Errorf("failed to load identities: %w", err)
	}
	inTable := make(map[int64]struct{}, len(identities))
	for _, identity := range identities {
		inTable[identity.ID] = struct{}{}
	}
	if int64(len(inTable)) < indexCount || (indexMaxID > 0 && !containsID(inTable, indexMaxID)) {
		rebuilt := database.NewIdentityIndex()
		rebuilt.Build(identities)
		r.hnswMu.Lock()
		r.hnswIndex = rebuilt
		r.hnswMu.Unlock()
		r.logger.Info("rebuilt HNSW index from identities table", zap.Int("count", len(identities)))
		return nil
	}

	added := 0
	for _, identity := range identities {
		if index.Add(identity) {
			added++
		}
	}
	if added > 0 {
		r.logger.Info("added identities enrolled elsewhere to HNSW index", zap.Int("added", added))
	}
	return nil
}

func containsID(ids map[int64]struct{}, id int64) bool {
	_, ok := ids[id]
	return ok
}

// IsHNSWEnabled reports whether searches go through the in-memory index.
func (r *IdentityRepository) IsHNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswEnabled
}

// SaveHNSWIndex persists the index to the configured path, if any. The
// metadata describes the index itself, so a file missing identities enrolled
// by other processes is rebuilt on the next EnableHNSW.
func (r *IdentityRepository) SaveHNSWIndex(_ context.Context) error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	if r.hnswIndexPath == "" || r.hnswIndex == nil {
		return nil
	}

	metadata := indexMetadata(r.hnswIndex)
	if err := r.hnswIndex.Save(r.hnswIndexPath, metadata); err != nil {
		return fmt.Errorf("saving HNSW identity index: %w", err)
	}
	r.logger.Info("saved HNSW index",
		zap.String("path", r.hnswIndexPath),
		zap.Int64("count", metadata.IdentityCount),
		zap.Int64("max_id", metadata.MaxIdentityID))
	return nil
}
