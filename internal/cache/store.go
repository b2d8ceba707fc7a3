// Package cache memoizes document digests in SQLite so unchanged documents
// are not re-summarized on the next run.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/docsync/internal/digest"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the cache directory.
const FileName = "digests.db"

// Store is a digest cache keyed by digest.CacheKey.
type Store struct {
	db *sql.DB
}

// Open creates dir if needed and opens (or creates) the cache database in it.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("cache: open database: %w", err)
	}
	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("cache: pragma %q: %w", p, err)
		}
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS digests (
		key        TEXT PRIMARY KEY,
		doc_id     TEXT NOT NULL,
		payload    TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the cached digest for key, if any.
func (s *Store) Get(key string) (digest.DocumentDigest, bool, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM digests WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return digest.DocumentDigest{}, false, nil
	}
	if err != nil {
		return digest.DocumentDigest{}, false, fmt.Errorf("cache: get: %w", err)
	}
	var d digest.DocumentDigest
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return digest.DocumentDigest{}, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return d, true, nil
}

// Put stores d under key, replacing any earlier entry.
func (s *Store) Put(key string, d digest.DocumentDigest) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO digests (key, doc_id, payload, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET doc_id = excluded.doc_id, payload = excluded.payload, created_at = excluded.created_at`,
		key, d.DocID, string(payload), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("cache: put: %w", err)
	}
	return nil
}

// Stats reports the number of cached digests and distinct documents.
type Stats struct {
	Entries   int `json:"entries" yaml:"entries"`
	Documents int `json:"documents" yaml:"documents"`
}

func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.db.QueryRow(`SELECT COUNT(*), COUNT(DISTINCT doc_id) FROM digests`).Scan(&st.Entries, &st.Documents)
	if err != nil {
		return Stats{}, fmt.Errorf("cache: stats: %w", err)
	}
	return st, nil
}

// Clear removes every entry and returns how many were deleted.
func (s *Store) Clear() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM digests`)
	if err != nil {
		return 0, fmt.Errorf("cache: clear: %w", err)
	}
	return res.RowsAffected()
}
