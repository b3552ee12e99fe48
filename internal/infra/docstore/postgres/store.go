// Package postgres persists document-store snapshots to Postgres through the
// pgx database/sql driver. Collections are stored as JSONB payloads; counters
// use an atomic upsert so ids stay unique across catalog processes.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/internal/infra/docstore/memory"
	"github.com/bart-jansen/opencga/internal/infra/docstore/snapshot"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var (
	_ snapshot.Sink    = (*Sink)(nil)
	_ snapshot.Counter = (*Sink)(nil)
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/catalog?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// OverrideSQLOpen swaps the sql.Open hook and returns a restore function.
// Tests use it to inject sqlmock connections.
func OverrideSQLOpen(fn func(driverName, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}

// Sink stores collections and counters in Postgres.
type Sink struct {
	db *sql.DB
}

// Open returns a snapshotting document store backed by Postgres.
func Open(ctx context.Context, dsn string) (*snapshot.Store, error) {
	sink, err := NewSink(ctx, dsn)
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

// NewSink connects to dsn (falling back to defaultDSN) and ensures the
// snapshot tables exist.
func NewSink(ctx context.Context, dsn string) (*Sink, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Sink{db: db}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Sink) DB() *sql.DB { return s.db }

func ensureTables(ctx context.Context, db *sql.DB) error {
	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS state (
			bucket TEXT PRIMARY KEY,
			payload JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS counters (
			name TEXT PRIMARY KEY,
			value BIGINT NOT NULL
		)`,
	} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure tables: %w", err)
		}
	}
	return nil
}

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
	_, err = s.db.ExecContext(ctx, `INSERT INTO state(bucket, payload) VALUES($1, $2)
		ON CONFLICT (bucket) DO UPDATE SET payload = EXCLUDED.payload`, name, data)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", name, err)
	}
	return nil
}

// SaveCounter implements snapshot.Sink.
func (s *Sink) SaveCounter(ctx context.Context, name string, value int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO counters(name, value) VALUES($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = GREATEST(counters.value, EXCLUDED.value)`, name, value)
	if err != nil {
		return fmt.Errorf("save counter %s: %w", name, err)
	}
	return nil
}

// NextID implements snapshot.Counter.
func (s *Sink) NextID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `INSERT INTO counters(name, value) VALUES($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1 RETURNING value`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", name, err)
	}
	return id, nil
}

// Close implements snapshot.Sink.
func (s *Sink) Close() error { return s.db.Close() }
