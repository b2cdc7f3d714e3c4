package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockKey serializes schema changes of concurrently starting instances.
const migrationLockKey = 0x66616365 // "face"

// migration is one embedded schema file, named NNN_description.sql.
type migration struct {
	version int
	name    string
	sql     string
}

// loadMigrations reads the schema files of fsys ordered by version.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	seen := make(map[int]string, len(files))
	out := make([]migration, 0, len(files))
	for _, file := range files {
		name := strings.TrimSuffix(path.Base(file), ".sql")
		prefix, _, ok := strings.Cut(name, "_")
		version, err := strconv.Atoi(prefix)
		if !ok || err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %s: name must start with a positive version", file)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", other, name, version)
		}
		seen[version] = name

		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}
		out = append(out, migration{version: version, name: name, sql: string(content)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// Migrate brings the face_records schema up to date. Every migration runs in
// its own transaction together with its face_schema_versions row.
func (p *Pool) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		return err
	}

	if _, err := p.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS face_schema_versions (
			version    INTEGER PRIMARY KEY,
			name       TEXT        NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create schema version table: %w", err)
	}

	for _, m := range migrations {
		applied, err := p.applyMigration(ctx, m)
		if err != nil {
			return err
		}
		if applied {
			log.Printf("Applied schema migration %d (%s)", m.version, m.name)
		}
	}
	return nil
}

// applyMigration runs m unless another instance already did. It reports
// whether m was applied by this call.
func (p *Pool) applyMigration(ctx context.Context, m migration) (bool, error) {
	tx, err := p.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return false, fmt.Errorf("lock schema for migration %d: %w", m.version, err)
	}

	var done bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM face_schema_versions WHERE version = $1)", m.version).Scan(&done)
	if err != nil {
		return false, fmt.Errorf("check migration %d: %w", m.version, err)
	}
	if done {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return false, fmt.Errorf("execute migration %s: %w", m.name, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO face_schema_versions (version, name) VALUES ($1, $2)", m.version, m.name); err != nil {
		return false, fmt.Errorf("record migration %s: %w", m.name, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", m.name, err)
	}
	return true, nil
}

// SchemaVersion returns the highest applied migration version, 0 for an empty database.
func (p *Pool) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := p.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM face_schema_versions").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}
