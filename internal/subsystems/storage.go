package subsystems

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/giantswarm/prealloc/internal/profile"
	"github.com/giantswarm/prealloc/internal/registry"
)

// StorageName is the registry name of the key/value storage subsystem.
const StorageName = "storage"

// Storage is a key/value store backed by the kv table of the profile database.
type Storage struct {
	path string

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// NewStorage returns a storage subsystem over the profile database at path.
func NewStorage(path string) *Storage {
	return &Storage{path: path}
}

// Descriptor returns the registry descriptor for s.
func (s *Storage) Descriptor() registry.Descriptor {
	return registry.Descriptor{Name: StorageName, Warm: s.Warm}
}

// Warm opens the database, verifies the connection and counts stored keys so
// the table pages are resident before the first task reads them.
func (s *Storage) Warm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.db != nil {
		return nil
	}

	db, err := profile.Open(s.path)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping sqlite %s: %w", s.path, err)
	}
	var keys int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM kv`).Scan(&keys); err != nil {
		_ = db.Close()
		return fmt.Errorf("scan kv table: %w", err)
	}
	s.db = db
	return nil
}

// Get returns the value stored under key. The bool is false if key is absent.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	db, err := s.handle()
	if err != nil {
		return nil, false, err
	}
	var v []byte
	err = db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return v, true, nil
}

// Put stores value under key, replacing any previous value.
func (s *Storage) Put(ctx context.Context, key string, value []byte) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// Close releases the database handle. A closed Storage cannot be warmed
// again.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return closeDB(&s.db)
}

func (s *Storage) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrNotWarmed
	}
	return s.db, nil
}

func closeDB(db **sql.DB) error {
	if *db == nil {
		return nil
	}
	err := (*db).Close()
	*db = nil
	if err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
