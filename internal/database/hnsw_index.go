package database

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndexMetadata is stored next to a persisted index to detect staleness.
type HNSWIndexMetadata struct {
	IdentityCount int64     `json:"identity_count"`
	MaxIdentityID int64     `json:"max_identity_id"`
	BuildTime     time.Time `json:"build_time"`
	Version       int       `json:"version"`
}

const hnswMetadataVersion = 1

// IdentityIndex is an in-memory HNSW graph over identity embeddings.
type IdentityIndex struct {
	graph      *hnsw.Graph[int64]
	savedGraph *hnsw.SavedGraph[int64]
	identities map[int64]*Identity
	mu         sync.RWMutex
}

// NewIdentityIndex creates an empty index.
func NewIdentityIndex() *IdentityIndex {
	return &IdentityIndex{identities: make(map[int64]*Identity)}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the given identities.
func (x *IdentityIndex) Build(identities []Identity) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.savedGraph = nil
	x.identities = make(map[int64]*Identity, len(identities))
	if len(identities) == 0 {
		x.graph = nil
		return
	}

	g := newGraph()
	for i := range identities {
		id := &identities[i]
		if len(id.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(id.ID, []float32(id.Embedding)))
		x.identities[id.ID] = id
	}
	if len(x.identities) > 0 {
		x.graph = g
	} else {
		x.graph = nil
	}
}

// Add inserts a newly enrolled identity and reports whether it was new.
// Identities are immutable, so an id already indexed is left as is.
func (x *IdentityIndex) Add(identity Identity) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if len(identity.Embedding) == 0 {
		return false
	}
	if _, ok := x.identities[identity.ID]; ok {
		return false
	}
	if x.graph == nil {
		x.graph = newGraph()
		if x.savedGraph != nil {
			// A loaded graph is read-only; rebuild from known identities first.
			for _, known := range x.identities {
				x.graph.Add(hnsw.MakeNode(known.ID, []float32(known.Embedding)))
			}
			x.savedGraph = nil
		}
	}
	x.graph.Add(hnsw.MakeNode(identity.ID, []float32(identity.Embedding)))
	x.identities[identity.ID] = &identity
	return true
}

// Search returns up to k identities nearest to query with their exact cosine distances.
// Distances are recomputed with CosineDistance so callers can compare them against
// the same threshold as a linear scan.
func (x *IdentityIndex) Search(query Embedding, k int) ([]Identity, []float64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil && x.savedGraph == nil {
		if len(x.identities) == 0 {
			return nil, nil, nil
		}
		return nil, nil, errors.New("index not initialized")
	}

	if k <= 0 {
		return nil, nil, nil
	}
	pool := max(k, HNSWSearchCandidates)
	var neighbors []hnsw.Node[int64]
	if x.savedGraph != nil {
		neighbors = x.savedGraph.Search([]float32(query), pool)
	} else {
		neighbors = x.graph.Search([]float32(query), pool)
	}

	type scored struct {
		identity *Identity
		distance float64
	}
	candidates := make([]scored, 0, len(neighbors))
	for _, n := range neighbors {
		id, ok := x.identities[n.Key]
		if !ok {
			continue
		}
		candidates = append(candidates, scored{identity: id, distance: CosineDistance(query, n.Value)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].identity.ID < candidates[j].identity.ID
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	found := make([]Identity, 0, len(candidates))
	distances := make([]float64, 0, len(candidates))
	for _, c := range candidates {
		found = append(found, *c.identity)
		distances = append(distances, c.distance)
	}
	return found, distances, nil
}

// Count returns the number of indexed identities.
func (x *IdentityIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.identities)
}

// Stats describes what the index holds: its identity count and largest id.
// Persisted metadata is stamped from these, never from the database.
func (x *IdentityIndex) Stats() (count, maxID int64) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for id := range x.identities {
		maxID = max(maxID, id)
	}
	return int64(len(x.identities)), maxID
}

// Save writes the graph, its metadata (.meta) and identity records (.ids) next to path.
func (x *IdentityIndex) Save(path string, metadata HNSWIndexMetadata) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil && x.savedGraph == nil {
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		_ = os.Remove(path + ".ids")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if x.savedGraph != nil {
		err = x.savedGraph.Export(f)
	} else {
		err = x.graph.Export(f)
	}
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}

	metadata.Version = hnswMetadataVersion
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	records := make([]Identity, 0, len(x.identities))
	for _, id := range x.identities {
		records = append(records, *id)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(records); err != nil {
		return fmt.Errorf("failed to encode identities: %w", err)
	}
	if err := os.WriteFile(path+".ids", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write identities file: %w", err)
	}
	return nil
}

// LoadHNSWMetadata reads the .meta file written by Save.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata
	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// Load replaces the index with the graph and identity records saved at path.
func (x *IdentityIndex) Load(path string) error {
	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	data, err := os.ReadFile(path + ".ids") //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to read identities file: %w", err)
	}
	var records []Identity
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&records); err != nil {
		return fmt.Errorf("failed to decode identities: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.graph = nil
	x.savedGraph = saved
	x.identities = make(map[int64]*Identity, len(records))
	for i := range records {
		x.identities[records[i].ID] = &records[i]
	}
	return nil
}
