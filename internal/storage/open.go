package storage

import (
	"context"
	"errors"
	"strings"

	logx "ghbridge/pkg/logx"
)

// Store is the persistence API used by the shared app state.
type Store interface {
	// Load returns the saved state, ErrNotFound, or a *LoadError.
	Load(ctx context.Context) (PersistedState, error)
	// Save replaces the whole saved state.
	Save(ctx context.Context, st PersistedState) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file", "json":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql", "pg":
		return openPostgres(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
