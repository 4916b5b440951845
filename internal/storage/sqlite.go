package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	logx "ghbridge/pkg/logx"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

type sqliteStore struct {
	db  *sqlx.DB
	log logx.Logger
}

// stateRow is the single bridge_state row shared by the SQL drivers.
type stateRow struct {
	Endpoint       sql.NullString `db:"endpoint"`
	LastPollCursor sql.NullString `db:"last_poll_cursor"`
}

func (r stateRow) toState() PersistedState {
	var st PersistedState
	if r.Endpoint.Valid {
		st.Endpoint = StringPtr(r.Endpoint.String)
	}
	if r.LastPollCursor.Valid {
		st.LastPollCursor = StringPtr(r.LastPollCursor.String)
	}
	return st
}

func nullable(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage(sqlite): open: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage(sqlite): migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Load(ctx context.Context) (PersistedState, error) {
	var row stateRow
	err := s.db.GetContext(ctx, &row, `SELECT endpoint, last_poll_cursor FROM bridge_state WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return PersistedState{}, ErrNotFound
	}
	if err != nil {
		return PersistedState{}, &LoadError{Driver: "sqlite", Err: err}
	}
	return row.toState(), nil
}

func (s *sqliteStore) Save(ctx context.Context, st PersistedState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bridge_state(id, endpoint, last_poll_cursor, updated_at) VALUES(1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   endpoint = excluded.endpoint,
		   last_poll_cursor = excluded.last_poll_cursor,
		   updated_at = excluded.updated_at`,
		nullable(st.Endpoint), nullable(st.LastPollCursor), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storage(sqlite): save: %w", err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
