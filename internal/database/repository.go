package database

import (
	"context"
)

// RecordReader provides read access to stored face records
type RecordReader interface {
	// LoadRecords returns all records ordered by first insertion of their key
	LoadRecords(ctx context.Context) ([]VectorRecord, error)
	// Count returns the total number of records stored
	Count(ctx context.Context) (int, error)
}

// RecordWriter provides write access to stored face records
type RecordWriter interface {
	RecordReader

	// UpsertRecords stores the records atomically: either all of them are
	// committed or none. Existing (identity, seq_index) keys are overwritten
	// in place and keep their position in the load order.
	UpsertRecords(ctx context.Context, records []VectorRecord) error

	// Close releases the underlying connection.
	Close() error
}

// IdentityRemover is implemented by backends that support administrative deletes.
type IdentityRemover interface {
	// DeleteIdentity removes all records of an identity and returns how many were removed.
	DeleteIdentity(ctx context.Context, identityID string) (int, error)
}
