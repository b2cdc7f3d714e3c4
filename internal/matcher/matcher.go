// Package matcher resolves a query embedding to the most similar enrolled record.
package matcher

import (
	"sort"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// MatchResult is the best candidate at or above the threshold.
type MatchResult struct {
	IdentityID    string  `json:"identity_id"`
	IdentityLabel string  `json:"identity_label"`
	Similarity    float64 `json:"similarity"`
}

// FindBestMatch scans all candidates and returns the one with the highest cosine
// similarity to query. Ties go to the first occurrence. A nil result with a nil
// error means no candidate reached threshold (or there were no candidates).
func FindBestMatch(query []float32, candidates [][]float32, meta []database.RecordMeta, threshold float64) (*MatchResult, error) {
	if len(meta) != len(candidates) {
		return nil, ErrMetadataMismatch
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	for i, c := range candidates {
		if len(c) != len(query) {
			return nil, &DimensionMismatchError{Index: i, Expected: len(query), Actual: len(c)}
		}
	}

	bestIdx := -1
	bestSim := 0.0
	for i, c := range candidates {
		sim := Similarity(query, c)
		if bestIdx < 0 || sim > bestSim {
			bestIdx = i
			bestSim = sim
		}
	}

	if bestSim < threshold {
		return nil, nil
	}
	return &MatchResult{
		IdentityID:    meta[bestIdx].IdentityID,
		IdentityLabel: meta[bestIdx].IdentityLabel,
		Similarity:    bestSim,
	}, nil
}

// Matcher matches queries against store snapshots with a fixed threshold.
// The zero value is not usable; use New.
type Matcher struct {
	threshold float64
	index     *Index
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithIndex makes Similar search large snapshots through an HNSW index.
// Match always scans the whole snapshot.
func WithIndex(idx *Index) Option {
	return func(m *Matcher) {
		m.index = idx
	}
}

// New creates a matcher accepting matches with similarity >= threshold.
func New(threshold float64, opts ...Option) *Matcher {
	m := &Matcher{threshold: threshold}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the configured minimum similarity.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match finds the best record of snap for query.
func (m *Matcher) Match(snap *database.Snapshot, query []float32) (*MatchResult, error) {
	return FindBestMatch(query, snap.Vectors, snap.Records, m.threshold)
}

// Neighbor is an enrolled record close to a query.
type Neighbor struct {
	Position      int     `json:"-"`
	IdentityID    string  `json:"identity_id"`
	IdentityLabel string  `json:"identity_label"`
	Similarity    float64 `json:"similarity"`
}

// Similar returns up to k records of snap closest to query, most similar
// first, ties in snapshot order. With an index and a snapshot of at least
// HNSWMinRecords records the search is approximate and may miss neighbors.
func (m *Matcher) Similar(snap *database.Snapshot, query []float32, k int) ([]Neighbor, error) {
	if len(snap.Records) != len(snap.Vectors) {
		return nil, ErrMetadataMismatch
	}
	if k <= 0 || snap.Len() == 0 {
		return nil, nil
	}

	var positions []int
	if m.index != nil && snap.Len() >= m.index.minRecords {
		if len(query) != len(snap.Vectors[0]) {
			return nil, &DimensionMismatchError{Index: 0, Expected: len(query), Actual: len(snap.Vectors[0])}
		}
		positions = m.index.Candidates(snap, query, k)
	} else {
		positions = make([]int, snap.Len())
		for i := range positions {
			positions[i] = i
		}
	}

	out := make([]Neighbor, 0, len(positions))
	for _, i := range positions {
		if len(snap.Vectors[i]) != len(query) {
			return nil, &DimensionMismatchError{Index: i, Expected: len(query), Actual: len(snap.Vectors[i])}
		}
		out = append(out, Neighbor{
			Position:      i,
			IdentityID:    snap.Records[i].IdentityID,
			IdentityLabel: snap.Records[i].IdentityLabel,
			Similarity:    Similarity(query, snap.Vectors[i]),
		})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Similarity != out[b].Similarity {
			return out[a].Similarity > out[b].Similarity
		}
		return out[a].Position < out[b].Position
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
