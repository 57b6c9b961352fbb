// Package state provides the sinks that persist adjusted mappings and cycle
// collections: a versioned SQLite store, a fail-safe JSON file, an
// in-memory recorder and a fan-out wrapper.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/ouroboros/internal/attribute"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS state_versions (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	kind          TEXT NOT NULL,
	payload       TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES state_versions(version_id)
);

CREATE TABLE IF NOT EXISTS provenance_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	stage         TEXT NOT NULL,
	inputs_json   TEXT,
	output_json   TEXT,
	ethics        TEXT,
	reason        TEXT,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS active_state (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES state_versions(version_id)
);
`
// #endregion schema

// #region store-struct
// Store keeps every saved record as a version in SQLite. Each save links to
// the previously active version and becomes the new active one.
type Store struct {
	db  *sql.DB
	now func() time.Time
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}
// #endregion constructor

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #region save
// Save records rec as a new version and moves the active pointer to it.
func (s *Store) Save(ctx context.Context, rec attribute.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", rec.Kind(), err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parent interface{}
	var activeID string
	err = tx.QueryRowContext(ctx, `SELECT version_id FROM active_state WHERE id = 1`).Scan(&activeID)
	switch {
	case err == nil:
		parent = activeID
	case errors.Is(err, sql.ErrNoRows):
	default:
		return fmt.Errorf("get active: %w", err)
	}

	id := uuid.New().String()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO state_versions (version_id, parent_id, kind, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, parent, string(rec.Kind()), string(payload), s.now().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO active_state (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		id,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
// #endregion save

// #region get-current
// GetCurrent reads the active version. It returns ErrNoActiveVersion on an
// empty store.
func (s *Store) GetCurrent() (Version, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_state WHERE id = 1`).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, ErrNoActiveVersion
	}
	if err != nil {
		return Version{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}
// #endregion get-current

// #region get-version
// GetVersion retrieves a specific version by ID.
func (s *Store) GetVersion(id string) (Version, error) {
	row := s.db.QueryRow(
		`SELECT version_id, parent_id, kind, payload, created_at
		 FROM state_versions WHERE version_id = ?`, id,
	)
	v, err := scanVersion(row)
	if err != nil {
		return Version{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return v, nil
}
// #endregion get-version

// #region rollback
// Rollback sets the active pointer to a previous version.
func (s *Store) Rollback(targetVersionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM state_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s not found", targetVersionID)
	}

	_, err = s.db.Exec(`UPDATE active_state SET version_id = ? WHERE id = 1`, targetVersionID)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
// #endregion rollback

// #region list-versions
// ListVersions returns up to limit versions, newest first.
func (s *Store) ListVersions(limit int) ([]Version, error) {
	rows, err := s.db.Query(
		`SELECT version_id, parent_id, kind, payload, created_at
		 FROM state_versions ORDER BY rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
// #endregion list-versions

// #region scan
type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(row scanner) (Version, error) {
	var v Version
	var parentID sql.NullString
	var kind, payload, createdStr string

	if err := row.Scan(&v.ID, &parentID, &kind, &payload, &createdStr); err != nil {
		return Version{}, err
	}
	if parentID.Valid {
		v.ParentID = parentID.String
	}
	v.Kind = attribute.Kind(kind)
	rec, err := attribute.DecodeRecord(v.Kind, []byte(payload))
	if err != nil {
		return Version{}, err
	}
	v.Record = rec
	v.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return v, nil
}
// #endregion scan
