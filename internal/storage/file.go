package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "ghbridge/pkg/logx"
)

const defaultStatePath = "./state.json"

// fileStore keeps the state in one JSON document.
//
// Saves write <path>.tmp, fsync it, then rename over <path>, so a concurrent
// reader sees either the previous document or the new one.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	closed bool
}

// fileDocument is the on-disk shape. LastPoll is the key used by
// older state files and is only read, never written.
type fileDocument struct {
	Endpoint       *string `json:"endpoint"`
	LastPollCursor *string `json:"last_poll_cursor"`
	LastPoll       *string `json:"last_poll,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = defaultStatePath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage(file): create dir: %w", err)
		}
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Load(ctx context.Context) (PersistedState, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return PersistedState{}, ErrClosed
	}

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return PersistedState{}, ErrNotFound
	}
	if err != nil {
		return PersistedState{}, &LoadError{Driver: "file", Err: err}
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return PersistedState{}, ErrNotFound
	}

	var doc fileDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return PersistedState{}, &LoadError{Driver: "file", Err: err}
	}
	st := PersistedState{Endpoint: doc.Endpoint, LastPollCursor: doc.LastPollCursor}
	if st.LastPollCursor == nil && doc.LastPoll != nil {
		st.LastPollCursor = doc.LastPoll
		s.log.Debug("state uses legacy last_poll key", logx.String("path", s.path))
	}
	return st, nil
}

func (s *fileStore) Save(ctx context.Context, st PersistedState) error {
	_ = ctx
	b, err := json.MarshalIndent(fileDocument{Endpoint: st.Endpoint, LastPollCursor: st.LastPollCursor}, "", "  ")
	if err != nil {
		return fmt.Errorf("storage(file): encode: %w", err)
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("storage(file): open tmp: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("storage(file): write tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("storage(file): sync tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("storage(file): close tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("storage(file): replace: %w", err)
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
