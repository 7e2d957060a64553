package database

import "time"

// HNSW index parameters for face embeddings. Galleries are small, so recall is
// favoured over build time.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// HNSWSearchCandidates is the minimum number of candidates pulled from the
	// index before exact re-ranking.
	HNSWSearchCandidates = 32

	// HNSWSyncInterval is how often a search may compare the index with the
	// identities table to pick up enrollments made by other processes.
	HNSWSyncInterval = 30 * time.Second
)
