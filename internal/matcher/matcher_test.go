package matcher

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/database"
)

func unit(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}

func negate(v []float32) []float32 {
	out := make([]float32, len(v))
	for i := range v {
		out[i] = -v[i]
	}
	return out
}

func randomUnit(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		v[i] = float32(r.NormFloat64())
		norm += float64(v[i]) * float64(v[i])
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func meta(ids ...string) []database.RecordMeta {
	out := make([]database.RecordMeta, len(ids))
	for i, id := range ids {
		out[i] = database.RecordMeta{IdentityID: id, IdentityLabel: "label-" + id}
	}
	return out
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"not normalized", []float32{3, 0}, []float32{5, 0}, 1},
		{"zero query", []float32{0, 0}, []float32{1, 0}, -1},
		{"zero candidate", []float32{1, 0}, []float32{0, 0}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Similarity() = %v, want %v", got, tt.want)
			}
			if d := Distance(tt.a, tt.b); math.Abs(d-(1-tt.want)) > 1e-12 {
				t.Errorf("Distance() = %v, want %v", d, 1-tt.want)
			}
		})
	}
}

func TestFindBestMatch_EmptyCandidates(t *testing.T) {
	got, err := FindBestMatch(unit(4, 0), nil, nil, 0.45)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected no match, got %+v", got)
	}
}

func TestFindBestMatch_EndToEnd(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	v := randomUnit(r, 512)
	candidates := [][]float32{v}
	records := []database.RecordMeta{{IdentityID: "E7", IdentityLabel: "Bob"}}

	got, err := FindBestMatch(v, candidates, records, 0.45)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected match")
	}
	if got.IdentityID != "E7" || got.IdentityLabel != "Bob" {
		t.Errorf("unexpected match %+v", got)
	}
	if math.Abs(got.Similarity-1) > 1e-6 {
		t.Errorf("expected similarity ~1.0, got %v", got.Similarity)
	}

	got, err = FindBestMatch(negate(v), candidates, records, 0.45)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected no match for opposite vector, got %+v", got)
	}

	got, err = FindBestMatch(negate(v), candidates, records, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || math.Abs(got.Similarity+1) > 1e-6 {
		t.Errorf("expected match with similarity ~-1.0 at threshold -1, got %+v", got)
	}
}

func TestFindBestMatch_ThresholdBoundary(t *testing.T) {
	query := []float32{0.6, 0.8, 0}
	candidate := []float32{0.8, 0.6, 0}
	sim := Similarity(query, candidate)

	tests := []struct {
		name      string
		threshold float64
		wantMatch bool
	}{
		{"equal accepted", sim, true},
		{"one ulp above rejected", math.Nextafter(sim, 2), false},
		{"one ulp below accepted", math.Nextafter(sim, -2), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindBestMatch(query, [][]float32{candidate}, meta("E1"), tt.threshold)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (got != nil) != tt.wantMatch {
				t.Errorf("match = %v, want %v", got != nil, tt.wantMatch)
			}
		})
	}
}

func TestFindBestMatch_TieBreaksOnFirstOccurrence(t *testing.T) {
	v := unit(8, 3)
	candidates := [][]float32{unit(8, 0), v, v, unit(8, 1)}

	got, err := FindBestMatch(v, candidates, meta("A", "B", "C", "D"), 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.IdentityID != "B" {
		t.Errorf("expected first tied candidate B, got %+v", got)
	}
}

func TestFindBestMatch_PicksMaximum(t *testing.T) {
	query := []float32{1, 0.1, 0}
	candidates := [][]float32{{0, 1, 0}, {1, 0, 0}, {1, 1, 0}}

	got, err := FindBestMatch(query, candidates, meta("A", "B", "C"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.IdentityID != "B" {
		t.Errorf("expected B, got %+v", got)
	}
}

func TestFindBestMatch_DimensionMismatch(t *testing.T) {
	candidates := [][]float32{unit(4, 0), unit(3, 0)}

	got, err := FindBestMatch(unit(4, 1), candidates, meta("A", "B"), 0.45)
	var dimErr *DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no partial result, got %+v", got)
	}
	if dimErr.Index != 1 || dimErr.Expected != 4 || dimErr.Actual != 3 {
		t.Errorf("unexpected error fields %+v", dimErr)
	}
}

func TestFindBestMatch_MetadataMismatch(t *testing.T) {
	_, err := FindBestMatch(unit(4, 0), [][]float32{unit(4, 0)}, nil, 0.45)
	if !errors.Is(err, ErrMetadataMismatch) {
		t.Errorf("expected ErrMetadataMismatch, got %v", err)
	}
}

func TestFindBestMatch_Deterministic(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 7))
	candidates := make([][]float32, 50)
	ids := make([]string, 50)
	for i := range candidates {
		candidates[i] = randomUnit(r, 64)
		ids[i] = string(rune('A' + i%26))
	}
	query := randomUnit(r, 64)

	first, err := FindBestMatch(query, candidates, meta(ids...), -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range 10 {
		again, _ := FindBestMatch(query, candidates, meta(ids...), -1)
		if *again != *first {
			t.Fatalf("non-deterministic result: %+v vs %+v", again, first)
		}
	}
}

func TestMatcher_EmptySnapshot(t *testing.T) {
	m := New(0.45)

	got, err := m.Match(&database.Snapshot{}, unit(512, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected no match, got %+v", got)
	}
	if m.Threshold() != 0.45 {
		t.Errorf("expected threshold 0.45, got %v", m.Threshold())
	}
}

func randomSnapshot(r *rand.Rand, n, dim int) *database.Snapshot {
	snap := &database.Snapshot{Version: 1}
	for i := range n {
		snap.Vectors = append(snap.Vectors, randomUnit(r, dim))
		snap.Records = append(snap.Records, database.RecordMeta{
			IdentityID:    fmt.Sprintf("E%d", i/3),
			IdentityLabel: fmt.Sprintf("Person %d", i/3),
		})
	}
	return snap
}

func TestMatcher_IndexedMatchIsExact(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 1))
	snap := randomSnapshot(r, 1500, 64)

	idx := NewIndex()
	indexed := New(-1, WithIndex(idx))
	flat := New(-1)

	for i := range 200 {
		q := randomUnit(r, 64)

		want, err := flat.Match(snap, q)
		if err != nil {
			t.Fatalf("flat match failed: %v", err)
		}
		got, err := indexed.Match(snap, q)
		if err != nil {
			t.Fatalf("indexed match failed: %v", err)
		}
		if got == nil || want == nil {
			t.Fatalf("query %d: expected a match with threshold -1, got %+v and %+v", i, got, want)
		}
		if *got != *want {
			t.Fatalf("query %d: indexed %+v, flat %+v", i, got, want)
		}
	}
}

func TestMatcher_SimilarFlat(t *testing.T) {
	m := New(0.45)
	snap := &database.Snapshot{
		Version: 1,
		Vectors: [][]float32{unit(4, 0), unit(4, 1), unit(4, 0), negate(unit(4, 0))},
		Records: meta("A", "B", "C", "D"),
	}

	got, err := m.Similar(snap, unit(4, 0), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"A", "C", "B"}
	if len(got) != len(want) {
		t.Fatalf("expected %d neighbors, got %+v", len(want), got)
	}
	for i, id := range want {
		if got[i].IdentityID != id {
			t.Errorf("neighbor %d: expected %s, got %+v", i, id, got[i])
		}
	}

	if got, _ := m.Similar(snap, unit(4, 0), 0); got != nil {
		t.Errorf("expected no neighbors for k=0, got %+v", got)
	}
	if _, err := m.Similar(snap, unit(8, 0), 1); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestMatcher_SimilarIndexed(t *testing.T) {
	r := rand.New(rand.NewPCG(9, 9))
	snap := randomSnapshot(r, 1200, 16)

	idx := NewIndex()
	m := New(0.45, WithIndex(idx))

	found := 0
	for i := 0; i < snap.Len(); i += 60 {
		got, err := m.Similar(snap, snap.Vectors[i], 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) == 0 || len(got) > 5 {
			t.Fatalf("expected 1..5 neighbors, got %d", len(got))
		}
		for j := 1; j < len(got); j++ {
			if got[j].Similarity > got[j-1].Similarity {
				t.Fatalf("neighbors not sorted: %+v", got)
			}
		}
		if got[0].Position == i {
			found++
		}
	}
	// Stored vectors are their own nearest neighbor; the graph may miss a few.
	if found < 18 {
		t.Errorf("expected most stored vectors to find themselves, got %d/20", found)
	}
	if v, ok := idx.Version(); !ok || v != 1 {
		t.Errorf("expected index built for version 1, got %d %v", v, ok)
	}
}

func TestMatcher_SimilarRebuildsOnNewVersion(t *testing.T) {
	idx := NewIndex()
	idx.minRecords = 1
	m := New(0.9, WithIndex(idx))

	snap1 := &database.Snapshot{Version: 1, Vectors: [][]float32{unit(4, 0)}, Records: meta("A")}
	if _, err := m.Similar(snap1, unit(4, 1), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap2 := &database.Snapshot{Version: 2, Vectors: [][]float32{unit(4, 0), unit(4, 1)}, Records: meta("A", "B")}
	got, err := m.Similar(snap2, unit(4, 1), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].IdentityID != "B" {
		t.Errorf("expected B after rebuild, got %+v", got)
	}
	if v, _ := idx.Version(); v != 2 {
		t.Errorf("expected index version 2, got %d", v)
	}
}

func TestMatcher_SimilarIndexDimensionMismatch(t *testing.T) {
	idx := NewIndex()
	idx.minRecords = 1
	m := New(0.45, WithIndex(idx))
	snap := &database.Snapshot{Version: 1, Vectors: [][]float32{unit(4, 0)}, Records: meta("A")}

	_, err := m.Similar(snap, unit(8, 0), 1)
	var dimErr *DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Errorf("expected DimensionMismatchError, got %v", err)
	}
}
