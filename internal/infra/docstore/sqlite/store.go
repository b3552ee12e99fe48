// Package sqlite persists document-store snapshots to a single SQLite file.
// Each collection is stored as one JSON payload in the state table; counters
// live in their own table so increments stay atomic across processes.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/internal/infra/docstore/memory"
	"github.com/bart-jansen/opencga/internal/infra/docstore/snapshot"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var (
	_ snapshot.Sink    = (*Sink)(nil)
	_ snapshot.Counter = (*Sink)(nil)
)

const defaultPath = "catalog.db"

// Sink stores collections and counters in SQLite.
type Sink struct {
	db   *sql.DB
	path string
}

// Open returns a snapshotting document store backed by the SQLite file at path.
func Open(ctx context.Context, path string) (*snapshot.Store, error) {
	sink, err := NewSink(ctx, path)
	if err != nil {
		return nil, err
	}
	store, err := snapshot.Open(ctx, sink)
	if err != nil {
		_ = sink.Close()
		return nil, err
	}
	return store, nil
}

// NewSink opens (and creates when needed) the SQLite file.
func NewSink(ctx context.Context, path string) (*Sink, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, ddl := range []string{
		`PRAGMA busy_timeout = 5000`,
		`CREATE TABLE IF NOT EXISTS state (
			bucket TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS counters (
			name TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		)`,
	} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prepare sqlite schema: %w", err)
		}
	}
	return &Sink{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Sink) Path() string { return s.path }

// DB exposes the underlying handle for tests.
func (s *Sink) DB() *sql.DB { return s.db }

// Load implements snapshot.Sink.
func (s *Sink) Load(ctx context.Context) (memory.Snapshot, error) {
	snap := memory.Snapshot{
		Collections: map[string][]docstore.Document{},
		Counters:    map[string]int64{},
	}
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return snap, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return snap, fmt.Errorf("scan state: %w", err)
		}
		docs, err := docstore.UnmarshalDocuments(payload)
		if err != nil {
			return snap, fmt.Errorf("decode %s: %w", bucket, err)
		}
		snap.Collections[bucket] = docs
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}

	crows, err := s.db.QueryContext(ctx, `SELECT name, value FROM counters`)
	if err != nil {
		return snap, fmt.Errorf("select counters: %w", err)
	}
	defer func() { _ = crows.Close() }()
	for crows.Next() {
		var name string
		var value int64
		if err := crows.Scan(&name, &value); err != nil {
			return snap, fmt.Errorf("scan counter: %w", err)
		}
		snap.Counters[name] = value
	}
	return snap, crows.Err()
}

// SaveCollection implements snapshot.Sink.
func (s *Sink) SaveCollection(ctx context.Context, name string, docs []docstore.Document) error {
	if docs == nil {
		docs = []docstore.Document{}
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, name, data); err != nil {
		return fmt.Errorf("upsert %s: %w", name, err)
	}
	return nil
}

// SaveCounter implements snapshot.Sink. Counters never move backwards.
func (s *Sink) SaveCounter(ctx context.Context, name string, value int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO counters(name,value) VALUES(?,?) ON CONFLICT(name) DO UPDATE SET value=MAX(value, excluded.value)`, name, value)
	if err != nil {
		return fmt.Errorf("save counter %s: %w", name, err)
	}
	return nil
}

// NextID implements snapshot.Counter with a single atomic upsert.
func (s *Sink) NextID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `INSERT INTO counters(name,value) VALUES(?,1) ON CONFLICT(name) DO UPDATE SET value=value+1 RETURNING value`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", name, err)
	}
	return id, nil
}

// Close implements snapshot.Sink.
func (s *Sink) Close() error { return s.db.Close() }
