// Package objectstore persists document-store snapshots as JSON blobs in any
// blob.Store (filesystem, S3 or memory). Each collection is one object under
// collections/ and each counter one object under counters/.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bart-jansen/opencga/internal/blob"
	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/internal/infra/docstore/memory"
	"github.com/bart-jansen/opencga/internal/infra/docstore/snapshot"
)

var _ snapshot.Sink = (*Sink)(nil)

const (
	collectionsDir = "collections/"
	countersDir    = "counters/"
	jsonSuffix     = ".json"
	contentType    = "application/json"
)

// Sink stores snapshot state in a blob store under an optional key prefix.
type Sink struct {
	blobs  blob.Store
	prefix string
}

// Open returns a snapshotting document store persisted to blobs.
func Open(ctx context.Context, blobs blob.Store, prefix string) (*snapshot.Store, error) {
	return snapshot.Open(ctx, NewSink(blobs, prefix))
}

// NewSink wraps blobs. A non-empty prefix is treated as a directory.
func NewSink(blobs blob.Store, prefix string) *Sink {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Sink{blobs: blobs, prefix: prefix}
}

func (s *Sink) collectionKey(name string) string { return s.prefix + collectionsDir + name + jsonSuffix }
func (s *Sink) counterKey(name string) string    { return s.prefix + countersDir + name + jsonSuffix }

// Load implements snapshot.Sink.
func (s *Sink) Load(ctx context.Context) (memory.Snapshot, error) {
	snap := memory.Snapshot{
		Collections: map[string][]docstore.Document{},
		Counters:    map[string]int64{},
	}
	infos, err := s.blobs.List(ctx, s.prefix+collectionsDir)
	if err != nil {
		return snap, fmt.Errorf("list collections: %w", err)
	}
	for _, info := range infos {
		name, ok := s.nameOf(info.Key, collectionsDir)
		if !ok {
			continue
		}
		raw, err := s.read(ctx, info.Key)
		if err != nil {
			return snap, err
		}
		docs, err := docstore.UnmarshalDocuments(raw)
		if err != nil {
			return snap, fmt.Errorf("decode %s: %w", name, err)
		}
		snap.Collections[name] = docs
	}
	infos, err = s.blobs.List(ctx, s.prefix+countersDir)
	if err != nil {
		return snap, fmt.Errorf("list counters: %w", err)
	}
	for _, info := range infos {
		name, ok := s.nameOf(info.Key, countersDir)
		if !ok {
			continue
		}
		value, err := s.readCounter(ctx, info.Key)
		if err != nil {
			return snap, fmt.Errorf("decode counter %s: %w", name, err)
		}
		snap.Counters[name] = value
	}
	return snap, nil
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
	if _, err := s.blobs.Put(ctx, s.collectionKey(name), bytes.NewReader(data), blob.PutOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// SaveCounter implements snapshot.Sink. A stored counter never decreases.
func (s *Sink) SaveCounter(ctx context.Context, name string, value int64) error {
	key := s.counterKey(name)
	current, err := s.readCounter(ctx, key)
	switch {
	case errors.Is(err, blob.ErrNotFound):
	case err != nil:
		return fmt.Errorf("read counter %s: %w", name, err)
	case current >= value:
		return nil
	}
	data := []byte(strconv.FormatInt(value, 10))
	if _, err := s.blobs.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("write counter %s: %w", name, err)
	}
	return nil
}

// Close implements snapshot.Sink; blob stores hold no handles.
func (s *Sink) Close() error { return nil }

func (s *Sink) nameOf(key, dir string) (string, bool) {
	rest, ok := strings.CutPrefix(key, s.prefix+dir)
	if !ok || !strings.HasSuffix(rest, jsonSuffix) {
		return "", false
	}
	name := strings.TrimSuffix(rest, jsonSuffix)
	return name, name != "" && !strings.Contains(name, "/")
}

func (s *Sink) read(ctx context.Context, key string) ([]byte, error) {
	_, rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

func (s *Sink) readCounter(ctx context.Context, key string) (int64, error) {
	raw, err := s.read(ctx, key)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
}
