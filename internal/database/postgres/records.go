package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// RecordRepository is a database.RecordWriter over the face_records table.
type RecordRepository struct {
	pool *Pool
}

// NewRecordRepository creates a new PostgreSQL record repository
func NewRecordRepository(pool *Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

// LoadRecords returns all records ordered by first insertion of their key.
func (r *RecordRepository) LoadRecords(ctx context.Context) ([]database.VectorRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT identity_id, seq_index, identity_label, embedding, created_at
		FROM face_records
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []database.VectorRecord
	for rows.Next() {
		var rec database.VectorRecord
		var vec pgvector.Vector
		if err := rows.Scan(&rec.IdentityID, &rec.SeqIndex, &rec.IdentityLabel, &vec, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Vector = vec.Slice()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Count returns the total number of records stored
func (r *RecordRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_records").Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// UpsertRecords writes all records in one transaction.
// ON CONFLICT keeps the row id, so overwritten keys keep their load position.
func (r *RecordRepository) UpsertRecords(ctx context.Context, records []database.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO face_records (identity_id, seq_index, identity_label, embedding, created_at)
		VALUES ($1, $2, $3, $4::vector, $5)
		ON CONFLICT (identity_id, seq_index) DO UPDATE SET
			identity_label = EXCLUDED.identity_label,
			embedding = EXCLUDED.embedding,
			created_at = EXCLUDED.created_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.ExecContext(ctx, rec.IdentityID, rec.SeqIndex, rec.IdentityLabel,
			pgvector.NewVector(rec.Vector), rec.CreatedAt)
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
func (r *RecordRepository) DeleteIdentity(ctx context.Context, identityID string) (int, error) {
	return r.DeleteIdentities(ctx, []string{identityID})
}

// DeleteIdentities removes all records of the given identities.
func (r *RecordRepository) DeleteIdentities(ctx context.Context, identityIDs []string) (int, error) {
	if len(identityIDs) == 0 {
		return 0, nil
	}
	res, err := r.pool.Exec(ctx, "DELETE FROM face_records WHERE identity_id = ANY($1)", pq.Array(identityIDs))
	if err != nil {
		return 0, fmt.Errorf("delete identities: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying pool.
func (r *RecordRepository) Close() error {
	return r.pool.Close()
}

// Verify interface compliance.
var _ database.RecordWriter = (*RecordRepository)(nil)
var _ database.IdentityRemover = (*RecordRepository)(nil)
