package taskwire

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	clientmigrations "github.com/hyperengineering/taskwire/internal/migrations/client"
)

// changelogKey is the single fixed slot the serialized changelog lives
// under. There is no schema migration logic for the value itself: a
// malformed stored log is corruption, not something to repair.
const changelogKey = "changelog"

// SQLiteLogStore is the durable client-local LogStore: a small key-value
// table in a SQLite database, written after every log mutation and read
// back verbatim at startup.
type SQLiteLogStore struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
	path   string
}

// OpenLogStore opens or creates the client database at path.
func OpenLogStore(path string) (*SQLiteLogStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps concurrent CLI invocations from tripping over each other
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteLogStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteLogStore) migrate() error {
	goose.SetBaseFS(clientmigrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("logstore: set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "."); err != nil {
		return fmt.Errorf("logstore: run migrations: %w", err)
	}
	return nil
}

// Load restores the persisted changelog. An empty slot yields an empty
// log; an undecodable slot is an error.
func (s *SQLiteLogStore) Load() ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var raw string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, changelogKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("logstore: load changelog: %w", err)
	}

	var changes []Change
	if err := json.Unmarshal([]byte(raw), &changes); err != nil {
		return nil, fmt.Errorf("logstore: corrupt changelog: %w", err)
	}
	return changes, nil
}

// Save serializes the changelog into its slot, replacing the previous
// value.
func (s *SQLiteLogStore) Save(changes []Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if changes == nil {
		changes = []Change{}
	}
	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("logstore: encode changelog: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, changelogKey, string(raw))
	if err != nil {
		return fmt.Errorf("logstore: save changelog: %w", err)
	}
	return nil
}

// GetMeta reads an auxiliary metadata value. Missing keys yield "".
func (s *SQLiteLogStore) GetMeta(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetMeta writes an auxiliary metadata value.
func (s *SQLiteLogStore) SetMeta(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// Close closes the store.
func (s *SQLiteLogStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
