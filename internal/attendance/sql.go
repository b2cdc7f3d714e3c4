package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/kozaktomas/face-attendance/internal/database/mariadb"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// dialect holds the per-driver SQL.
type dialect struct {
	driver string
	create string
	insert string
}

var dialects = map[string]dialect{
	"sqlite": {
		driver: "sqlite",
		create: `CREATE TABLE IF NOT EXISTS attendance_events (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id     TEXT    NOT NULL DEFAULT '',
			identity_id    TEXT    NOT NULL,
			identity_label TEXT    NOT NULL,
			mode           TEXT    NOT NULL,
			similarity     REAL    NOT NULL,
			recorded_at    TIMESTAMP NOT NULL
		)`,
		insert: `INSERT INTO attendance_events (session_id, identity_id, identity_label, mode, similarity, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
	},
	"mysql": {
		driver: "mysql",
		create: `CREATE TABLE IF NOT EXISTS attendance_events (
			id             BIGINT AUTO_INCREMENT PRIMARY KEY,
			session_id     VARCHAR(64)  NOT NULL DEFAULT '',
			identity_id    VARCHAR(255) NOT NULL,
			identity_label VARCHAR(255) NOT NULL,
			mode           VARCHAR(16)  NOT NULL,
			similarity     DOUBLE       NOT NULL,
			recorded_at    DATETIME(6)  NOT NULL,
			INDEX idx_attendance_events_identity (identity_id, recorded_at)
		)`,
		insert: `INSERT INTO attendance_events (session_id, identity_id, identity_label, mode, similarity, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
	},
	"postgres": {
		driver: "postgres",
		create: `CREATE TABLE IF NOT EXISTS attendance_events (
			id             BIGSERIAL PRIMARY KEY,
			session_id     TEXT             NOT NULL DEFAULT '',
			identity_id    TEXT             NOT NULL,
			identity_label TEXT             NOT NULL,
			mode           TEXT             NOT NULL,
			similarity     DOUBLE PRECISION NOT NULL,
			recorded_at    TIMESTAMPTZ      NOT NULL
		)`,
		insert: `INSERT INTO attendance_events (session_id, identity_id, identity_label, mode, similarity, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
	},
}

// SQLSink writes events to an attendance_events table.
type SQLSink struct {
	db     *sql.DB
	insert string
	owned  bool
}

// OpenSQLSink opens a database with the named driver (sqlite, mysql or postgres).
func OpenSQLSink(ctx context.Context, driver, dsn string) (*SQLSink, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported SQL driver %q", driver)
	}
	if dsn == "" {
		return nil, errors.New("SQL DSN is required")
	}

	var db *sql.DB
	var err error
	switch driver {
	case "mysql":
		if db, err = mariadb.NewPool(ctx, dsn); err != nil {
			return nil, err
		}
	default:
		if db, err = sql.Open(d.driver, dsn); err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if driver == "sqlite" {
			db.SetMaxOpenConns(1)
		}
	}

	s, err := NewSQLSink(ctx, db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLSink uses an existing database handle. The table is created if missing.
func NewSQLSink(ctx context.Context, db *sql.DB, driver string) (*SQLSink, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported SQL driver %q", driver)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, d.create); err != nil {
		return nil, fmt.Errorf("create attendance table: %w", err)
	}
	return &SQLSink{db: db, insert: d.insert}, nil
}

// Record inserts one event.
func (s *SQLSink) Record(ctx context.Context, ev recognition.AttendanceEvent) error {
	_, err := s.db.ExecContext(ctx, s.insert,
		ev.SessionID, ev.IdentityID, ev.IdentityLabel, string(ev.Mode), ev.Similarity, ev.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("insert attendance event: %w", err)
	}
	return nil
}

// Close closes the database if the sink opened it.
func (s *SQLSink) Close() error {
	if !s.owned {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing attendance database: %w", err)
	}
	return nil
}
