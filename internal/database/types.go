package database

import (
	"strconv"
	"time"
)

// DefaultDim is the embedding dimension produced by buffalo_l / ArcFace (512 floats).
const DefaultDim = 512

// VectorRecord is a single enrolled face embedding.
type VectorRecord struct {
	IdentityID    string
	IdentityLabel string // label stored at enrollment time, never rewritten retroactively
	SeqIndex      int    // position within the enrollment batch
	Vector        []float32
	CreatedAt     time.Time
}

// Key returns the record key (identity, position).
func (r *VectorRecord) Key() RecordKey {
	return RecordKey{IdentityID: r.IdentityID, SeqIndex: r.SeqIndex}
}

// RecordKey identifies a record. Adding a record with an existing key overwrites it.
type RecordKey struct {
	IdentityID string
	SeqIndex   int
}

// ID returns the derived record ID, e.g. "E1_0".
func (k RecordKey) ID() string {
	return k.IdentityID + "_" + strconv.Itoa(k.SeqIndex)
}

// RecordMeta is the metadata returned alongside each vector of a snapshot.
type RecordMeta struct {
	IdentityID    string `json:"identity_id"`
	IdentityLabel string `json:"identity_label"`
}

// Identity is an enrolled subject with the number of stored samples.
type Identity struct {
	ID      string `json:"identity_id"`
	Label   string `json:"identity_label"`
	Samples int    `json:"samples"`
}

// Snapshot is an immutable point-in-time view of the store.
// Vectors and Records are index-aligned; callers must not modify them.
type Snapshot struct {
	Version uint64
	Vectors [][]float32
	Records []RecordMeta
}

// Len returns the number of records in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Vectors)
}

// Identities returns the unique identities in snapshot order.
// The label is taken from the first record of each identity.
func (s *Snapshot) Identities() []Identity {
	if s == nil {
		return []Identity{}
	}
	pos := make(map[string]int)
	out := make([]Identity, 0)
	for _, meta := range s.Records {
		if meta.IdentityID == "" {
			continue
		}
		if i, ok := pos[meta.IdentityID]; ok {
			out[i].Samples++
			continue
		}
		pos[meta.IdentityID] = len(out)
		out = append(out, Identity{ID: meta.IdentityID, Label: meta.IdentityLabel, Samples: 1})
	}
	return out
}
