package db

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	embedded "github.com/kamipay/pixrouter/migrations"
)

// MigrationStatus describes one migration's state.
type MigrationStatus struct {
	ID          string
	Checksum    string
	Applied     bool
	AppliedAt   *time.Time
	ExecutionMs int64
}

type migration struct {
	ID       string
	Checksum string
	SQL      string
}

func migrationSource(conn *sqlx.DB) (embed.FS, string, error) {
	switch conn.DriverName() {
	case "sqlite3":
		return embedded.SqliteMigrations, "sqlite", nil
	case "postgres":
		return embedded.PostgresMigrations, "postgres", nil
	default:
		return embed.FS{}, "", fmt.Errorf("unsupported database driver: %s", conn.DriverName())
	}
}

// MigrateUp applies all pending migrations in filename order. Applied
// migrations are checksummed; a changed file fails the run instead of
// silently diverging schemas.
func MigrateUp(conn *sqlx.DB) error {
	fsys, dir, err := migrationSource(conn)
	if err != nil {
		return err
	}
	if err := ensureMigrationsTable(conn); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	migrations, err := loadMigrations(fsys, dir)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	applied, err := appliedChecksums(conn)
	if err != nil {
		return fmt.Errorf("query applied migrations: %w", err)
	}
	known := make(map[string]string, len(migrations))
	for _, m := range migrations {
		known[m.ID] = m.Checksum
	}
	for id, checksum := range applied {
		expected, ok := known[id]
		if !ok {
			return fmt.Errorf("migration %s applied but missing from embedded files", id)
		}
		if checksum != expected {
			return fmt.Errorf("checksum mismatch for migration %s", id)
		}
	}

	for _, m := range migrations {
		if _, done := applied[m.ID]; done {
			continue
		}
		start := time.Now()

		// Execution and bookkeeping share a transaction so a failure leaves
		// no half-applied record.
		tx, err := conn.Beginx()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.ID, err)
		}
		if err := execStatements(tx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.ID, err)
		}
		if err := recordMigration(tx, m, time.Since(start)); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.ID, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.ID, err)
		}
	}

	return nil
}

// MigrateStatus reports every embedded migration with its applied state.
func MigrateStatus(conn *sqlx.DB) ([]MigrationStatus, error) {
	fsys, dir, err := migrationSource(conn)
	if err != nil {
		return nil, err
	}
	if err := ensureMigrationsTable(conn); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}
	migrations, err := loadMigrations(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}

	rows, err := conn.Queryx("SELECT migration_id, checksum, applied_at, execution_ms FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]MigrationStatus)
	for rows.Next() {
		var s MigrationStatus
		var appliedAt any
		if err := rows.Scan(&s.ID, &s.Checksum, &appliedAt, &s.ExecutionMs); err != nil {
			return nil, err
		}
		if t := parseAppliedAt(appliedAt); t != nil {
			s.AppliedAt = t
		}
		s.Applied = true
		applied[s.ID] = s
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		if s, ok := applied[m.ID]; ok {
			statuses = append(statuses, s)
			continue
		}
		statuses = append(statuses, MigrationStatus{ID: m.ID, Checksum: m.Checksum})
	}
	return statuses, nil
}

func loadMigrations(fsys embed.FS, dir string) ([]migration, error) {
	var out []migration
	err := fs.WalkDir(fsys, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		content, err := fsys.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		sum := sha256.Sum256(content)
		out = append(out, migration{
			ID:       filepath.Base(path),
			Checksum: fmt.Sprintf("%x", sum),
			SQL:      string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func ensureMigrationsTable(conn *sqlx.DB) error {
	createSQL := `
		CREATE TABLE IF NOT EXISTS migrations (
			migration_id TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMP WITHOUT TIME ZONE NOT NULL,
			execution_ms INTEGER NOT NULL
		)`
	if conn.DriverName() == "sqlite3" {
		createSQL = `
		CREATE TABLE IF NOT EXISTS migrations (
			migration_id TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL,
			execution_ms INTEGER NOT NULL
		)`
	}
	_, err := conn.Exec(createSQL)
	return err
}

func appliedChecksums(conn *sqlx.DB) (map[string]string, error) {
	rows, err := conn.Queryx("SELECT migration_id, checksum FROM migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, checksum string
		if err := rows.Scan(&id, &checksum); err != nil {
			return nil, err
		}
		out[id] = checksum
	}
	return out, nil
}

// execStatements splits on semicolons because lib/pq rejects multi-statement
// Exec calls.
func execStatements(tx *sqlx.Tx, script string) error {
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || commentOnly(stmt) {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("statement failed: %w", err)
		}
	}
	return nil
}

func commentOnly(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}

func recordMigration(tx *sqlx.Tx, m migration, duration time.Duration) error {
	now := time.Now().UTC()
	if tx.DriverName() == "sqlite3" {
		_, err := tx.Exec(
			"INSERT INTO migrations (migration_id, checksum, applied_at, execution_ms) VALUES (?, ?, ?, ?)",
			m.ID, m.Checksum, now.Format(time.RFC3339), duration.Milliseconds(),
		)
		return err
	}
	_, err := tx.Exec(
		"INSERT INTO migrations (migration_id, checksum, applied_at, execution_ms) VALUES ($1, $2, $3, $4)",
		m.ID, m.Checksum, now, duration.Milliseconds(),
	)
	return err
}

func parseAppliedAt(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return nil
		}
		return &parsed
	case []byte:
		parsed, err := time.Parse(time.RFC3339, string(t))
		if err != nil {
			return nil
		}
		return &parsed
	default:
		return nil
	}
}
