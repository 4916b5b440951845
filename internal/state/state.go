// Package state holds the process-wide bridge state shared by the poller and
// the request handlers.
package state

import (
	"context"
	"errors"
	"sync"

	"ghbridge/internal/storage"
	logx "ghbridge/pkg/logx"
)

// State wraps the persisted record plus the static notification-source
// credential. It owns the only writable copy of the record.
//
// Writers hold the write lock across mutate + Save, so a reader observes the
// whole record either before or after a write. A failed Save is logged and the
// in-memory value is kept; the in-memory copy is authoritative after load.
type State struct {
	credential string
	store      storage.Store
	log        logx.Logger

	mu sync.RWMutex
	st storage.PersistedState
}

// New loads the persisted record once. Missing or unreadable state falls back
// to an empty record.
func New(ctx context.Context, store storage.Store, credential string, log logx.Logger) *State {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &State{credential: credential, store: store, log: log}
	if store == nil {
		return s
	}

	loaded, err := store.Load(ctx)
	switch {
	case err == nil:
		s.st = loaded.Clone()
	case errors.Is(err, storage.ErrNotFound):
		log.Info("no saved state; starting empty")
	default:
		log.Warn("state load failed; starting empty", logx.Err(err))
	}
	return s
}

// Credential returns the notification-source token.
func (s *State) Credential() string { return s.credential }

// Endpoint returns the registered push endpoint.
func (s *State) Endpoint() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deref(s.st.Endpoint)
}

// SetEndpoint replaces the push endpoint and persists the record.
func (s *State) SetEndpoint(ctx context.Context, endpoint string) {
	s.update(ctx, "endpoint", func(st *storage.PersistedState) {
		st.Endpoint = storage.StringPtr(endpoint)
	})
}

// Cursor returns the last poll cursor.
func (s *State) Cursor() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deref(s.st.LastPollCursor)
}

// SetCursor replaces the poll cursor and persists the record.
func (s *State) SetCursor(ctx context.Context, cursor string) {
	s.update(ctx, "last_poll_cursor", func(st *storage.PersistedState) {
		st.LastPollCursor = storage.StringPtr(cursor)
	})
}

// Snapshot returns a copy of the whole record.
func (s *State) Snapshot() storage.PersistedState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Clone()
}

func (s *State) update(ctx context.Context, field string, mutate func(*storage.PersistedState)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.st.Clone()
	mutate(&next)
	s.st = next

	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, next); err != nil {
		s.log.Error("state save failed; keeping in-memory value", logx.String("field", field), logx.Err(err))
	}
}

func deref(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	return *v, true
}
