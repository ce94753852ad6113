// Package state persists resumable operation state in SQLite, one database
// file per operation kind and generation.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/kubewright/kubewright/internal/logging"
)

// Store errors.
var (
	ErrStoreSealed   = errors.New("operation state is sealed")
	ErrStoreNotFound = errors.New("operation state not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS steps (
	label        TEXT PRIMARY KEY,
	completed_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store is the on-disk record of one operation's progress: a set of
// completed step labels plus a small key/value table. State is advisory,
// not transactional — a crash between a remote step committing and
// MarkStepDone repeats that step on resume, so callers keep their steps
// idempotent.
//
// A Store belongs to one coordinating process, but parallel step workers
// within it mark steps done concurrently: the in-memory views are guarded
// by mu, and the single database connection serializes the sqlite writes.
type Store struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger

	// ID is the generation id of this state file.
	ID string

	// Kind is the operation kind (deploy, upgrade, ...).
	Kind string

	mu   sync.RWMutex
	done map[string]struct{}
	kv   map[string]string
}

// Init allocates a fresh state file for an operation kind under dir.
func Init(ctx context.Context, dir, kind string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	id := uuid.New().String()
	store, err := open(filepath.Join(dir, fileName(kind, id)))
	if err != nil {
		return nil, err
	}
	store.ID = id
	store.Kind = kind

	now := time.Now().UTC().Format(time.RFC3339)
	for key, value := range map[string]string{
		"kind":       kind,
		"id":         id,
		"created_at": now,
		"sealed":     "0",
	} {
		if err := store.setMeta(ctx, key, value); err != nil {
			store.Close()
			return nil, err
		}
	}

	store.logger.Info().Str("path", store.path).Msg("initialized operation state")
	return store, nil
}

// FindResumable scans dir for the most recent unsealed state file of the
// given kind. It returns ErrStoreNotFound when none exists; a sealed file
// is never resumable.
func FindResumable(ctx context.Context, dir, kind string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrStoreNotFound
		}
		return "", fmt.Errorf("read state directory: %w", err)
	}

	type candidate struct {
		id      string
		modTime time.Time
	}
	var candidates []candidate

	prefix := kind + "-"
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".db")
		candidates = append(candidates, candidate{id: id, modTime: info.ModTime()})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})

	for _, c := range candidates {
		sealed, err := isSealed(ctx, filepath.Join(dir, fileName(kind, c.id)))
		if err != nil {
			continue
		}
		if !sealed {
			return c.id, nil
		}
	}

	return "", ErrStoreNotFound
}

// Load opens an existing state file and restores the done set and
// key/value store into memory.
func Load(ctx context.Context, dir, kind, id string) (*Store, error) {
	path := filepath.Join(dir, fileName(kind, id))
	if _, err := os.Stat(path); err != nil {
		return nil, ErrStoreNotFound
	}

	store, err := open(path)
	if err != nil {
		return nil, err
	}
	store.ID = id
	store.Kind = kind

	rows, err := store.db.QueryContext(ctx, `SELECT label FROM steps`)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load steps: %w", err)
	}
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			rows.Close()
			store.Close()
			return nil, err
		}
		store.done[label] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		store.Close()
		return nil, err
	}
	rows.Close()

	rows, err = store.db.QueryContext(ctx, `SELECT key, value FROM kv`)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load kv: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			store.Close()
			return nil, err
		}
		store.kv[key] = value
	}
	if err := rows.Err(); err != nil {
		store.Close()
		return nil, err
	}

	store.logger.Info().Str("path", store.path).Int("steps_done", len(store.done)).
		Msg("loaded operation state")
	return store, nil
}

// Set stores a key/value pair.
func (s *Store) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	s.kv[key] = value
	return nil
}

// Get returns the value stored for key, if any.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.kv[key]
	return value, ok
}

// MarkStepDone records a step label as committed.
func (s *Store) MarkStepDone(ctx context.Context, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steps (label, completed_at) VALUES (?, ?)
		ON CONFLICT(label) DO NOTHING
	`, label, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("mark step %q done: %w", label, err)
	}
	s.done[label] = struct{}{}
	return nil
}

// IsStepDone reports whether a step label has been committed.
func (s *Store) IsStepDone(label string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.done[label]
	return ok
}

// Complete seals the state file so it is no longer discoverable by
// FindResumable. Called only after the entire operation succeeds.
func (s *Store) Complete(ctx context.Context) error {
	if err := s.setMeta(ctx, "sealed", "1"); err != nil {
		return err
	}
	s.logger.Info().Str("path", s.path).Msg("sealed operation state")
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

func open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state file: %w", err)
	}
	// The store has a single writer; one connection keeps sqlite happy.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply state schema: %w", err)
	}

	return &Store{
		db:     db,
		path:   path,
		logger: logging.Component("state"),
		done:   make(map[string]struct{}),
		kv:     make(map[string]string),
	}, nil
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %q: %w", key, err)
	}
	return nil
}

func isSealed(ctx context.Context, path string) (bool, error) {
	store, err := open(path)
	if err != nil {
		return false, err
	}
	defer store.Close()

	var value string
	err = store.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'sealed'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == "1", nil
}

func fileName(kind, id string) string {
	return kind + "-" + id + ".db"
}
