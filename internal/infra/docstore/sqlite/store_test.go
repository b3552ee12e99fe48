package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bart-jansen/opencga/internal/docstore"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "catalog.db")
	store, err := Open(ctx, path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	coll := store.Collection("cohort")
	if err := coll.Insert(ctx, docstore.Document{"_id": int64(1), "name": "persist", "samples": []any{int64(3)}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := coll.Update(ctx, docstore.Eq("_id", 1), []docstore.Mutation{docstore.SetValue("description", "kept")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	defer func() { _ = reloaded.Close(ctx) }()
	doc, ok, err := docstore.FindOne(ctx, reloaded.Collection("cohort"), docstore.Eq("_id", 1), docstore.Projection{})
	if err != nil || !ok {
		t.Fatalf("find after reload: ok=%v err=%v", ok, err)
	}
	if doc.String("description") != "kept" {
		t.Fatalf("expected description kept, got %v", doc)
	}
	if got, _ := doc.Get("samples"); !docstore.Equal(got, []any{int64(3)}) {
		t.Fatalf("expected samples [3], got %v", got)
	}
}

func TestSQLiteCountersAreAtomicAndDurable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")
	first, err := NewSink(ctx, path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	second, err := NewSink(ctx, path)
	if err != nil {
		t.Fatalf("second handle: %v", err)
	}
	defer func() { _ = first.Close(); _ = second.Close() }()

	var last int64
	for i := 0; i < 10; i++ {
		sink := first
		if i%2 == 1 {
			sink = second
		}
		id, err := sink.NextID(ctx, "cohort")
		if err != nil {
			t.Fatalf("next id: %v", err)
		}
		if id <= last {
			t.Fatalf("ids must increase: %d after %d", id, last)
		}
		last = id
	}
	snap, err := first.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Counters["cohort"] != 10 {
		t.Fatalf("expected counter 10, got %d", snap.Counters["cohort"])
	}
}

func TestSaveCounterNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	sink, err := NewSink(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer func() { _ = sink.Close() }()
	if err := sink.SaveCounter(ctx, "x", 5); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := sink.SaveCounter(ctx, "x", 3); err != nil {
		t.Fatalf("save: %v", err)
	}
	id, err := sink.NextID(ctx, "x")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if id != 6 {
		t.Fatalf("expected 6, got %d", id)
	}
}
