// Package mock provides an in-memory implementation of the record backend,
// used for tests and for running without persistence.
package mock

import (
	"context"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// MemoryBackend is an in-memory database.RecordWriter.
type MemoryBackend struct {
	mu      sync.RWMutex
	records []database.VectorRecord
	index   map[database.RecordKey]int

	// Error injection
	LoadError   error
	CountError  error
	UpsertError error
	DeleteError error

	// UpsertCalls counts successful and failed upserts.
	UpsertCalls int
	closed      bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		index: make(map[database.RecordKey]int),
	}
}

// LoadRecords returns copies of all records in insertion order.
func (m *MemoryBackend) LoadRecords(ctx context.Context) ([]database.VectorRecord, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]database.VectorRecord, len(m.records))
	for i, rec := range m.records {
		out[i] = rec
		out[i].Vector = append([]float32(nil), rec.Vector...)
	}
	return out, nil
}

// Count returns the number of records.
func (m *MemoryBackend) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// UpsertRecords stores all records or none (when UpsertError is set).
func (m *MemoryBackend) UpsertRecords(ctx context.Context, records []database.VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpsertCalls++
	if m.UpsertError != nil {
		return m.UpsertError
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, rec := range records {
		rec.Vector = append([]float32(nil), rec.Vector...)
		if i, ok := m.index[rec.Key()]; ok {
			m.records[i] = rec
			continue
		}
		m.index[rec.Key()] = len(m.records)
		m.records = append(m.records, rec)
	}
	return nil
}

// DeleteIdentity removes all records of an identity.
func (m *MemoryBackend) DeleteIdentity(ctx context.Context, identityID string) (int, error) {
	if m.DeleteError != nil {
		return 0, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0:0]
	removed := 0
	for _, rec := range m.records {
		if rec.IdentityID == identityID {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	m.index = make(map[database.RecordKey]int, len(kept))
	for i := range kept {
		m.index[kept[i].Key()] = i
	}
	return removed, nil
}

// Close marks the backend closed.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (m *MemoryBackend) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Verify interface compliance.
var _ database.RecordWriter = (*MemoryBackend)(nil)
var _ database.IdentityRemover = (*MemoryBackend)(nil)
