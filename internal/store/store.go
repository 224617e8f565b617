// Package store persists analyzer facts, baselines, and run history in a
// SQLite database under the workspace.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"framecheck/internal/logging"
	"framecheck/internal/mangle"
	"framecheck/internal/report"
)

// Store is the SQLite-backed fact cache. It implements mangle.Persistence
// so the engine can warm-start from unchanged files.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewStore opens (creating if needed) the database at path.
func NewStore(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewStore")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.StoreDebug("database schema initialized at %s", path)
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		path         TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL,
		analyzed_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS facts (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		file      TEXT NOT NULL,
		predicate TEXT NOT NULL,
		args      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_facts_file ON facts(file);

	CREATE TABLE IF NOT EXISTS baseline (
		fingerprint TEXT PRIMARY KEY,
		rule_id     TEXT NOT NULL,
		file        TEXT NOT NULL,
		line        INTEGER NOT NULL,
		detail      TEXT NOT NULL DEFAULT '',
		saved_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		started_at  TIMESTAMP NOT NULL,
		duration_ms INTEGER NOT NULL,
		files       INTEGER NOT NULL,
		warnings    INTEGER NOT NULL,
		errors      INTEGER NOT NULL,
		policy_hash TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// ReplaceFactsForFile swaps the cached facts for one file inside a
// transaction and records its content hash.
func (s *Store) ReplaceFactsForFile(ctx context.Context, file string, facts []mangle.Fact, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM facts WHERE file = ?", file); err != nil {
		return fmt.Errorf("delete stale facts: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO facts (file, predicate, args) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, fact := range facts {
		encoded, err := json.Marshal(fact.Args)
		if err != nil {
			return fmt.Errorf("encode args for %s: %w", fact.Predicate, err)
		}
		if _, err := stmt.ExecContext(ctx, file, fact.Predicate, string(encoded)); err != nil {
			return fmt.Errorf("insert fact %s: %w", fact.Predicate, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO files (path, content_hash, analyzed_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET content_hash = excluded.content_hash, analyzed_at = excluded.analyzed_at`,
		file, contentHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert file state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	logging.StoreDebug("cached %d facts for %s", len(facts), file)
	return nil
}

// LoadFacts returns every cached fact across all files.
func (s *Store) LoadFacts(ctx context.Context) ([]mangle.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT predicate, args FROM facts")
	if err != nil {
		return nil, fmt.Errorf("load facts: %w", err)
	}
	defer rows.Close()

	var facts []mangle.Fact
	for rows.Next() {
		var predicate, encoded string
		if err := rows.Scan(&predicate, &encoded); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		args, err := decodeArgs(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode args for %s: %w", predicate, err)
		}
		facts = append(facts, mangle.Fact{Predicate: predicate, Args: args})
	}
	return facts, rows.Err()
}

// decodeArgs restores JSON-encoded arguments. Integer-valued numbers must
// come back as int64 so line joins in the policy keep working.
func decodeArgs(encoded string) ([]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(encoded)))
	dec.UseNumber()

	var raw []interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	for i, v := range raw {
		if num, ok := v.(json.Number); ok {
			if n, err := num.Int64(); err == nil {
				raw[i] = n
			} else if f, err := num.Float64(); err == nil {
				raw[i] = f
			}
		}
	}
	return raw, nil
}

// GetFileStates returns the content hash recorded for every cached file.
func (s *Store) GetFileStates(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT path, content_hash FROM files")
	if err != nil {
		return nil, fmt.Errorf("load file states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, fmt.Errorf("scan file state: %w", err)
		}
		states[path] = hash
	}
	return states, rows.Err()
}

// CachedPolicyHash returns the policy hash the fact cache was built
// under, or "" for a fresh database.
func (s *Store) CachedPolicyHash(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hash string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'policy_hash'").Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load policy hash: %w", err)
	}
	return hash, nil
}

// SetCachedPolicyHash records the policy hash the cached facts belong to.
func (s *Store) SetCachedPolicyHash(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES ('policy_hash', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		hash)
	if err != nil {
		return fmt.Errorf("save policy hash: %w", err)
	}
	return nil
}

// ResetCache drops every cached fact and file state. Baseline and run
// history survive a reset.
func (s *Store) ResetCache(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM facts"); err != nil {
		return fmt.Errorf("clear facts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM files"); err != nil {
		return fmt.Errorf("clear file states: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	logging.Store("fact cache reset")
	return nil
}

// DropFile removes all cached state for a file that no longer exists.
func (s *Store) DropFile(ctx context.Context, file string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM facts WHERE file = ?", file); err != nil {
		return fmt.Errorf("drop facts: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE path = ?", file); err != nil {
		return fmt.Errorf("drop file state: %w", err)
	}
	return nil
}

// BaselineEntry is one accepted finding in the baseline.
type BaselineEntry struct {
	Fingerprint string
	RuleID      string
	File        string
	Line        int
	Detail      string
	SavedAt     time.Time
}

// SaveBaseline replaces the baseline with the given findings.
func (s *Store) SaveBaseline(ctx context.Context, findings []report.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM baseline"); err != nil {
		return fmt.Errorf("clear baseline: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO baseline (fingerprint, rule_id, file, line, detail) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare baseline insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range findings {
		if _, err := stmt.ExecContext(ctx, f.Fingerprint(), f.RuleID, f.File, f.Line, f.Detail); err != nil {
			return fmt.Errorf("insert baseline entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit baseline: %w", err)
	}
	logging.Store("baseline saved with %d findings", len(findings))
	return nil
}

// BaselineFingerprints returns the set of accepted finding fingerprints.
func (s *Store) BaselineFingerprints(ctx context.Context) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT fingerprint FROM baseline")
	if err != nil {
		return nil, fmt.Errorf("load baseline: %w", err)
	}
	defer rows.Close()

	fingerprints := make(map[string]bool)
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("scan baseline: %w", err)
		}
		fingerprints[fp] = true
	}
	return fingerprints, rows.Err()
}

// BaselineEntries lists the baseline for display, ordered by location.
func (s *Store) BaselineEntries(ctx context.Context) ([]BaselineEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT fingerprint, rule_id, file, line, detail, saved_at FROM baseline ORDER BY file, line, rule_id")
	if err != nil {
		return nil, fmt.Errorf("load baseline entries: %w", err)
	}
	defer rows.Close()

	var entries []BaselineEntry
	for rows.Next() {
		var e BaselineEntry
		if err := rows.Scan(&e.Fingerprint, &e.RuleID, &e.File, &e.Line, &e.Detail, &e.SavedAt); err != nil {
			return nil, fmt.Errorf("scan baseline entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClearBaseline removes every accepted finding.
func (s *Store) ClearBaseline(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM baseline"); err != nil {
		return fmt.Errorf("clear baseline: %w", err)
	}
	return nil
}

// Run is one recorded check run.
type Run struct {
	ID         string
	StartedAt  time.Time
	Duration   time.Duration
	Files      int
	Warnings   int
	Errors     int
	PolicyHash string
}

// RecordRun appends a run to the history, tagged with the policy hash
// it was evaluated under.
func (s *Store) RecordRun(ctx context.Context, summary report.Summary, startedAt time.Time, duration time.Duration, policyHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, started_at, duration_ms, files, warnings, errors, policy_hash) VALUES (?, ?, ?, ?, ?, ?, ?)",
		id, startedAt.UTC(), duration.Milliseconds(), summary.Files, summary.Warnings, summary.Errors, policyHash)
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	return id, nil
}

// RecentRuns returns the newest runs first, at most limit of them.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, started_at, duration_ms, files, warnings, errors, policy_hash FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ms int64
		if err := rows.Scan(&r.ID, &r.StartedAt, &ms, &r.Files, &r.Warnings, &r.Errors, &r.PolicyHash); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FactCount reports the number of cached facts, for the stats command.
func (s *Store) FactCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM facts").Scan(&n)
	return n, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
