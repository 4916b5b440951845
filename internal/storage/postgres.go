package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	logx "ghbridge/pkg/logx"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS bridge_state (
    id               integer PRIMARY KEY CHECK (id = 1),
    endpoint         text NULL,
    last_poll_cursor text NULL,
    updated_at       timestamptz NOT NULL DEFAULT now()
)`

const stateRowID = 1

type postgresStore struct {
	db  *sqlx.DB
	log logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	wrapMsg := "storage(postgres): unable to initialize the database"

	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", wrapMsg, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", wrapMsg, err)
	}

	s := newPostgresStore(db, log)
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newPostgresStore(db *sqlx.DB, log logx.Logger) *postgresStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &postgresStore{db: db, log: log}
}

func (s *postgresStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("storage(postgres): migrate: %w", err)
	}
	return nil
}

func (s *postgresStore) Load(ctx context.Context) (PersistedState, error) {
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("endpoint", "last_poll_cursor").
		From("bridge_state").
		Where(sq.Eq{"id": stateRowID}).
		ToSql()
	if err != nil {
		return PersistedState{}, &LoadError{Driver: "postgres", Err: err}
	}

	var row stateRow
	err = s.db.GetContext(ctx, &row, statement, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return PersistedState{}, ErrNotFound
	}
	if err != nil {
		return PersistedState{}, &LoadError{Driver: "postgres", Err: err}
	}
	return row.toState(), nil
}

func (s *postgresStore) Save(ctx context.Context, st PersistedState) error {
	wrapMsg := "storage(postgres): unable to save state"

	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert("bridge_state").
		Columns("id", "endpoint", "last_poll_cursor", "updated_at").
		Values(stateRowID, nullable(st.Endpoint), nullable(st.LastPollCursor), sq.Expr("now()")).
		Suffix("ON CONFLICT (id) DO UPDATE SET " +
			"endpoint = EXCLUDED.endpoint, " +
			"last_poll_cursor = EXCLUDED.last_poll_cursor, " +
			"updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: %w", wrapMsg, err)
	}

	result, err := s.db.ExecContext(ctx, statement, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", wrapMsg, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", wrapMsg, err)
	}
	if rowsAffected != 1 {
		return fmt.Errorf("%s: unexpected number of rows affected: %d", wrapMsg, rowsAffected)
	}
	return nil
}

func (s *postgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
