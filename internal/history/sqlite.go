// Package history journals block decision changes in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/eliteGoblin/focusd/xgate/internal/domain"
)

// Store implements domain.TransitionRecorder.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal at path.
// ":memory:" gives a private in-memory journal.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("empty history path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single writer; also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS transitions(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp_unix INTEGER NOT NULL,
		block INTEGER NOT NULL,
		reasons TEXT NOT NULL,
		evidence TEXT NOT NULL,
		domains INTEGER NOT NULL,
		hosts_changed INTEGER NOT NULL
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

// Record appends one transition.
func (s *Store) Record(ctx context.Context, t domain.Transition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transitions(timestamp_unix, block, reasons, evidence, domains, hosts_changed)
		VALUES(?, ?, ?, ?, ?, ?);`,
		t.TimestampUnix, t.Block, strings.Join(t.Reasons, ","), strings.Join(t.Evidence, ","),
		t.Domains, t.HostsChanged)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// Recent returns up to limit transitions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.Transition, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp_unix, block, reasons, evidence, domains, hosts_changed
		FROM transitions ORDER BY id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transition
	for rows.Next() {
		var t domain.Transition
		var reasons, evidence string
		if err := rows.Scan(&t.ID, &t.TimestampUnix, &t.Block, &reasons, &evidence, &t.Domains, &t.HostsChanged); err != nil {
			return nil, err
		}
		t.Reasons = splitList(reasons)
		t.Evidence = splitList(evidence)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

var _ domain.TransitionRecorder = (*Store)(nil)
