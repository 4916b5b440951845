package storage

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Load when no state has been saved yet.
var ErrNotFound = errors.New("storage: no saved state")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("storage: closed")

// PersistedState is the durable bridge record.
// Absent values are nil and serialize as JSON null, never omitted.
type PersistedState struct {
	Endpoint       *string `json:"endpoint"`
	LastPollCursor *string `json:"last_poll_cursor"`
}

// Clone returns a deep copy so callers never share pointers with the store.
func (p PersistedState) Clone() PersistedState {
	return PersistedState{
		Endpoint:       cloneStr(p.Endpoint),
		LastPollCursor: cloneStr(p.LastPollCursor),
	}
}

func cloneStr(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

// StringPtr is a small helper for building a PersistedState.
func StringPtr(v string) *string { return &v }

// LoadError reports durable state that exists but cannot be read back.
// Callers recover by starting from an empty state.
type LoadError struct {
	Driver string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("storage(%s): load state: %v", e.Driver, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Config configures storage.
//
// Driver values:
//   - "file" (default): JSON document at Path
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL database at DSN
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
