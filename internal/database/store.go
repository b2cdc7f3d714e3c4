package database

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Store is the system of record for enrolled face embeddings.
//
// Reads go through an immutable in-memory Snapshot published with an atomic
// pointer, so Snapshot never waits on a writer. Writes are serialized by a
// single writer mutex; each Add is committed to the backend before the new
// snapshot is published, so a successful Add is visible to every later
// Snapshot and survives restarts.
type Store struct {
	backend RecordWriter
	dim     int

	writeMu sync.Mutex
	current atomic.Pointer[storeState]
	closed  atomic.Bool
}

// storeState is the published state. It is never modified after publication.
type storeState struct {
	snapshot *Snapshot
	records  []VectorRecord
	position map[RecordKey]int
}

// OpenStore loads all records from the backend and returns a ready store.
func OpenStore(ctx context.Context, backend RecordWriter, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension: %d", dim)
	}

	s := &Store{backend: backend, dim: dim}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Dim returns the fixed vector dimension of the store.
func (s *Store) Dim() int {
	return s.dim
}

// Reload rebuilds the in-memory snapshot from the backend.
func (s *Store) Reload(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	records, err := s.backend.LoadRecords(ctx)
	if err != nil {
		return fmt.Errorf("loading records: %w", err)
	}

	var version uint64
	if prev := s.current.Load(); prev != nil {
		version = prev.snapshot.Version + 1
	}

	position := make(map[RecordKey]int, len(records))
	kept := make([]VectorRecord, 0, len(records))
	for _, rec := range records {
		if len(rec.Vector) != s.dim {
			return fmt.Errorf("stored record %s: %w", rec.Key().ID(),
				&ValidationError{Index: rec.SeqIndex, Expected: s.dim, Actual: len(rec.Vector)})
		}
		if i, ok := position[rec.Key()]; ok {
			kept[i] = rec
			continue
		}
		position[rec.Key()] = len(kept)
		kept = append(kept, rec)
	}

	s.current.Store(newStoreState(kept, position, version))
	return nil
}

// Add stores the vectors of one enrollment batch for an identity.
// Vector i is stored under key (identityID, i); existing keys are overwritten.
// It returns the number of vectors stored. Empty input is a no-op.
func (s *Store) Add(ctx context.Context, identityID, identityLabel string, vectors [][]float32) (int, error) {
	if len(vectors) == 0 {
		return 0, nil
	}
	if identityID == "" {
		return 0, &ValidationError{Index: 0, cause: ErrEmptyIdentity}
	}
	for i, v := range vectors {
		if len(v) != s.dim {
			return 0, &ValidationError{Index: i, Expected: s.dim, Actual: len(v)}
		}
	}
	if s.closed.Load() {
		return 0, ErrClosed
	}

	now := time.Now().UTC()
	batch := make([]VectorRecord, len(vectors))
	for i, v := range vectors {
		vec := make([]float32, len(v))
		copy(vec, v)
		batch[i] = VectorRecord{
			IdentityID:    identityID,
			IdentityLabel: identityLabel,
			SeqIndex:      i,
			Vector:        vec,
			CreatedAt:     now,
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.backend.UpsertRecords(ctx, batch); err != nil {
		return 0, fmt.Errorf("storing records for %s: %w", identityID, err)
	}

	prev := s.current.Load()
	records := make([]VectorRecord, len(prev.records), len(prev.records)+len(batch))
	copy(records, prev.records)
	position := make(map[RecordKey]int, len(prev.position)+len(batch))
	for k, v := range prev.position {
		position[k] = v
	}
	for _, rec := range batch {
		if i, ok := position[rec.Key()]; ok {
			records[i] = rec
			continue
		}
		position[rec.Key()] = len(records)
		records = append(records, rec)
	}

	s.current.Store(newStoreState(records, position, prev.snapshot.Version+1))
	return len(batch), nil
}

// Snapshot returns the current point-in-time view of all records.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load().snapshot
}

// Identities lists enrolled identities in snapshot order.
func (s *Store) Identities() []Identity {
	return s.Snapshot().Identities()
}

// Count returns the number of records in the current snapshot.
func (s *Store) Count() int {
	return s.Snapshot().Len()
}

// DeleteIdentity removes an identity through the backend, if supported,
// and reloads the snapshot. This is an administrative operation.
func (s *Store) DeleteIdentity(ctx context.Context, identityID string) (int, error) {
	remover, ok := s.backend.(IdentityRemover)
	if !ok {
		return 0, ErrNotSupported
	}
	n, err := remover.DeleteIdentity(ctx, identityID)
	if err != nil {
		return 0, fmt.Errorf("deleting identity %s: %w", identityID, err)
	}
	if err := s.Reload(ctx); err != nil {
		return n, err
	}
	return n, nil
}

// Close closes the backend.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.backend.Close(); err != nil {
		return fmt.Errorf("closing store backend: %w", err)
	}
	return nil
}

func newStoreState(records []VectorRecord, position map[RecordKey]int, version uint64) *storeState {
	snap := &Snapshot{
		Version: version,
		Vectors: make([][]float32, len(records)),
		Records: make([]RecordMeta, len(records)),
	}
	for i := range records {
		snap.Vectors[i] = records[i].Vector
		snap.Records[i] = RecordMeta{
			IdentityID:    records[i].IdentityID,
			IdentityLabel: records[i].IdentityLabel,
		}
	}
	return &storeState{snapshot: snap, records: records, position: position}
}
