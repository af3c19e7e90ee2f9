package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLite keeps every slot as a blob row in a single database file.
type SQLite struct {
	db *sqlx.DB
}

type saveRow struct {
	Slot      string `db:"slot"`
	Data      []byte `db:"data"`
	UpdatedAt string `db:"updated_at"`
}

// OpenSQLite opens path, or path/saves.db when path is a directory.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, "saves.db")
	} else if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS saves (
		slot TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	);`)
	return err
}

func (s *SQLite) Save(ctx context.Context, slot string, data []byte) error {
	if err := ValidSlot(slot); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO saves (slot, data, updated_at)
	VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	ON CONFLICT(slot) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`, slot, data)
	return err
}

func (s *SQLite) Load(ctx context.Context, slot string) ([]byte, error) {
	var row saveRow
	err := s.db.GetContext(ctx, &row, `SELECT slot, data, updated_at FROM saves WHERE slot = ?`, slot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, slot)
	}
	if err != nil {
		return nil, err
	}
	return row.Data, nil
}

func (s *SQLite) List(ctx context.Context) ([]string, error) {
	var slots []string
	if err := s.db.SelectContext(ctx, &slots, `SELECT slot FROM saves ORDER BY slot`); err != nil {
		return nil, err
	}
	return slots, nil
}

func (s *SQLite) Delete(ctx context.Context, slot string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saves WHERE slot = ?`, slot)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, slot)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
