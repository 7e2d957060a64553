// Package facematch finds the enrolled identity closest to a probe face embedding.
package facematch

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const (
	// DefaultThreshold is the maximum cosine distance accepted as the same person.
	DefaultThreshold = 0.35

	// NoMatchDistance is reported when the gallery is empty.
	NoMatchDistance = 999.0

	// DefaultCandidates is how many neighbours IndexedMatcher re-ranks exactly:
	// the whole candidate pool the HNSW index pulls.
	DefaultCandidates = database.HNSWSearchCandidates
)

// Result of matching one probe against a gallery.
// Distance is always the best distance seen, even when Identity is nil.
type Result struct {
	Identity  *database.Identity
	Distance  float64
	Ambiguous bool // best match rejected because the runner-up was within the margin
}

// Matched reports whether an identity was accepted.
func (r Result) Matched() bool {
	return r.Identity != nil
}

// Match returns the gallery entry with the smallest cosine distance to query,
// accepted when distance <= threshold. The scan keeps the first minimum, so on
// ties the earliest entry wins; galleries are ordered by id ascending.
func Match(query database.Embedding, gallery []database.Identity, threshold float64) Result {
	return MatchWithMargin(query, gallery, threshold, 0)
}

// MatchWithMargin is Match with an ambiguity guard: when margin > 0 and the
// second-best entry is also under the threshold and closer than margin to the
// best, no identity is returned.
func MatchWithMargin(query database.Embedding, gallery []database.Identity, threshold, margin float64) Result {
	if len(gallery) == 0 {
		return Result{Distance: NoMatchDistance}
	}

	best := -1
	bestDist := math.Inf(1)
	secondDist := math.Inf(1)
	for i := range gallery {
		d := database.CosineDistance(query, gallery[i].Embedding)
		if d < bestDist {
			secondDist = bestDist
			bestDist = d
			best = i
		} else if d < secondDist {
			secondDist = d
		}
	}

	res := Result{Distance: bestDist}
	if bestDist > threshold {
		return res
	}
	if margin > 0 && secondDist <= threshold && secondDist-bestDist < margin {
		res.Ambiguous = true
		return res
	}
	matched := gallery[best]
	res.Identity = &matched
	return res
}

// Options configure a Matcher.
type Options struct {
	Threshold       float64 // defaults to DefaultThreshold
	AmbiguityMargin float64 // 0 disables the guard
}

func (o Options) threshold() float64 {
	if o.Threshold <= 0 {
		return DefaultThreshold
	}
	return o.Threshold
}

// Matcher matches a probe against the current set of enrolled identities.
type Matcher interface {
	Match(ctx context.Context, query database.Embedding) (Result, error)
}

// LinearMatcher scans a fresh snapshot of every identity on each call.
type LinearMatcher struct {
	reader database.IdentityReader
	opts   Options
}

// NewLinearMatcher creates a matcher over reader.
func NewLinearMatcher(reader database.IdentityReader, opts Options) *LinearMatcher {
	return &LinearMatcher{reader: reader, opts: opts}
}

// Match implements Matcher.
func (m *LinearMatcher) Match(ctx context.Context, query database.Embedding) (Result, error) {
	gallery, err := m.reader.ListIdentities(ctx, database.IdentityFilter{})
	if err != nil {
		return Result{}, fmt.Errorf("load gallery: %w", err)
	}
	return MatchWithMargin(query, gallery, m.opts.threshold(), m.opts.AmbiguityMargin), nil
}

// IndexedMatcher asks a NearestSearcher (HNSW or pgvector) for candidates and
// re-ranks them with exact cosine distance in id order, so acceptance and ties
// follow the same rules as LinearMatcher.
type IndexedMatcher struct {
	searcher   database.NearestSearcher
	candidates int
	opts       Options
}

// NewIndexedMatcher creates a matcher that re-ranks up to candidates neighbours.
func NewIndexedMatcher(searcher database.NearestSearcher, candidates int, opts Options) *IndexedMatcher {
	if candidates <= 0 {
		candidates = DefaultCandidates
	}
	return &IndexedMatcher{searcher: searcher, candidates: candidates, opts: opts}
}

// Match implements Matcher.
func (m *IndexedMatcher) Match(ctx context.Context, query database.Embedding) (Result, error) {
	found, _, err := m.searcher.SearchNearest(ctx, query, m.candidates)
	if err != nil {
		return Result{}, fmt.Errorf("search nearest: %w", err)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return MatchWithMargin(query, found, m.opts.threshold(), m.opts.AmbiguityMargin), nil
}
