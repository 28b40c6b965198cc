// Package state persists the record of what alforje has installed. The store
// is read once at the start of a run and rewritten once at the end; the
// rewrite builds a fresh database at a temporary path and renames it over the
// old one, so a killed run leaves either the previous state or the new state,
// never a mix. Losing the file is recoverable: every plugin is simply
// re-installed on the next run.
package state

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"

	"github.com/alforje/alforje/internal/log"
)

// Record is one installed plugin as of the last successful sync.
type Record struct {
	Name string
	// Path is the resolved repository path.
	Path string
	// Revision is the git head at last sync. Empty for local directories,
	// which are never revision-tracked.
	Revision string
	Disabled bool
	// Location is the declared location at last sync, kept so a changed
	// URL can be detected and force a re-clone.
	Location string
}

const schema = `CREATE TABLE IF NOT EXISTS installed (
  name      TEXT PRIMARY KEY,
  path      TEXT NOT NULL,
  revision  TEXT NOT NULL DEFAULT '',
  disabled  INTEGER NOT NULL DEFAULT 0,
  location  TEXT NOT NULL,
  synced_at TEXT NOT NULL
);`

// Store reads and rewrites the installed-plugins database.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a store over the database file at path. The file need not
// exist yet.
func NewStore(path string) *Store {
	return &Store{path: path, logger: log.WithComponent("state")}
}

// Load reads all records. A missing database yields an empty map. A checksum
// mismatch is logged but does not fail the run: the store is re-derivable and
// reconciliation will retry anything that looks stale.
func (s *Store) Load(ctx context.Context) (map[string]Record, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return map[string]Record{}, nil
	}

	if err := s.verifyChecksum(); err != nil {
		s.logger.Warn("state integrity check failed, proceeding anyway", "error", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure state schema: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		"SELECT name, path, revision, disabled, location FROM installed;")
	if err != nil {
		return nil, fmt.Errorf("read installed records: %w", err)
	}
	defer rows.Close()

	records := make(map[string]Record)
	for rows.Next() {
		var r Record
		var disabled int
		if err := rows.Scan(&r.Name, &r.Path, &r.Revision, &disabled, &r.Location); err != nil {
			return nil, fmt.Errorf("scan installed record: %w", err)
		}
		r.Disabled = disabled != 0
		records[r.Name] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read installed records: %w", err)
	}
	return records, nil
}

// Rewrite atomically replaces the store's contents with records.
func (s *Store) Rewrite(ctx context.Context, records map[string]Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp := s.path + ".tmp"
	_ = os.Remove(tmp)

	if err := s.writeDatabase(ctx, tmp, records); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace state database: %w", err)
	}

	if err := s.writeChecksum(); err != nil {
		// The state itself is already durable; a missing sidecar only
		// costs a warning on the next load.
		s.logger.Warn("could not write state checksum", "error", err)
	}

	s.logger.Debug("state rewritten", "records", len(records))
	return nil
}

func (s *Store) writeDatabase(ctx context.Context, path string, records map[string]Record) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("create state database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create state schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin state transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range records {
		disabled := 0
		if r.Disabled {
			disabled = 1
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO installed(name, path, revision, disabled, location, synced_at) VALUES(?, ?, ?, ?, ?, ?);",
			r.Name, r.Path, r.Revision, disabled, r.Location, now)
		if err != nil {
			return fmt.Errorf("insert record for %s: %w", r.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state transaction: %w", err)
	}
	return nil
}

func (s *Store) checksumPath() string {
	return s.path + ".b3"
}

func (s *Store) writeChecksum() error {
	sum, err := fileChecksum(s.path)
	if err != nil {
		return err
	}
	return os.WriteFile(s.checksumPath(), []byte(sum+"\n"), 0o644)
}

func (s *Store) verifyChecksum() error {
	want, err := os.ReadFile(s.checksumPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state checksum: %w", err)
	}

	got, err := fileChecksum(s.path)
	if err != nil {
		return err
	}
	if expected := string(want); expected != got+"\n" && expected != got {
		return fmt.Errorf("state checksum mismatch: expected %s, got %s", expected, got)
	}
	return nil
}

func fileChecksum(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
