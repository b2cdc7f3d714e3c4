// Package sqlite stores face records in an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS face_records (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	identity_id    TEXT    NOT NULL,
	seq_index      INTEGER NOT NULL,
	identity_label TEXT    NOT NULL,
	vector         BLOB    NOT NULL,
	created_at     INTEGER NOT NULL,
	UNIQUE (identity_id, seq_index)
);
CREATE INDEX IF NOT EXISTS idx_face_records_identity ON face_records(identity_id);
`

// Backend is a database.RecordWriter backed by SQLite.
type Backend struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite file at path and applies the schema.
func Open(ctx context.Context, path string) (*Backend, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection serializes writers and keeps the pragmas below in effect.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Backend{db: db}, nil
}

// DB returns the underlying sql.DB.
func (b *Backend) DB() *sql.DB {
	return b.db
}

// LoadRecords returns all records ordered by first insertion of their key.
func (b *Backend) LoadRecords(ctx context.Context) ([]database.VectorRecord, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT identity_id, seq_index, identity_label, vector, created_at
		FROM face_records
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []database.VectorRecord
	for rows.Next() {
		var rec database.VectorRecord
		var blob []byte
		var created int64
		if err := rows.Scan(&rec.IdentityID, &rec.SeqIndex, &rec.IdentityLabel, &blob, &created); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if rec.Vector, err = decodeVector(blob); err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.Key().ID(), err)
		}
		rec.CreatedAt = time.Unix(0, created).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Count returns the total number of records stored.
func (b *Backend) Count(ctx context.Context) (int, error) {
	var count int
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM face_records").Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// UpsertRecords writes all records in one transaction. Overwritten keys keep
// their original seq, so load order stays first-insertion order.
func (b *Backend) UpsertRecords(ctx context.Context, records []database.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO face_records (identity_id, seq_index, identity_label, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (identity_id, seq_index) DO UPDATE SET
			identity_label = excluded.identity_label,
			vector = excluded.vector,
			created_at = excluded.created_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.ExecContext(ctx, rec.IdentityID, rec.SeqIndex, rec.IdentityLabel,
			encodeVector(rec.Vector), rec.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("upsert record %s: %w", rec.Key().ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// DeleteIdentity removes all records of an identity.
func (b *Backend) DeleteIdentity(ctx context.Context, identityID string) (int, error) {
	res, err := b.db.ExecContext(ctx, "DELETE FROM face_records WHERE identity_id = ?", identityID)
	if err != nil {
		return 0, fmt.Errorf("delete identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Close closes the database.
func (b *Backend) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("closing sqlite database: %w", err)
	}
	return nil
}

// Verify interface compliance.
var _ database.RecordWriter = (*Backend)(nil)
var _ database.IdentityRemover = (*Backend)(nil)
