package objectstore

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bart-jansen/opencga/internal/blob"
	"github.com/bart-jansen/opencga/internal/docstore"
)

func backends() map[string]func() blob.Store {
	return map[string]func() blob.Store{
		"memory": blob.NewMemory,
		"s3":     blob.NewS3Mock,
	}
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	for name, newBlobs := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			blobs := newBlobs()
			store, err := Open(ctx, blobs, "catalog")
			require.NoError(t, err)

			id, err := store.NextID(ctx, "cohort")
			require.NoError(t, err)
			require.NoError(t, store.Collection("cohort").Insert(ctx, docstore.Document{"_id": id, "name": "c1"}))
			_, err = store.Collection("cohort").Update(ctx, docstore.Eq("_id", id), []docstore.Mutation{docstore.SetValue("type", "CASE")})
			require.NoError(t, err)
			require.NoError(t, store.Close(ctx))

			reopened, err := Open(ctx, blobs, "catalog/")
			require.NoError(t, err)
			doc, ok, err := docstore.FindOne(ctx, reopened.Collection("cohort"), docstore.Eq("name", "c1"), docstore.Projection{})
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "CASE", doc.String("type"))

			next, err := reopened.NextID(ctx, "cohort")
			require.NoError(t, err)
			assert.Equal(t, id+1, next)
		})
	}
}

func TestSaveCounterKeepsMaximum(t *testing.T) {
	ctx := context.Background()
	sink := NewSink(blob.NewMemory(), "")
	require.NoError(t, sink.SaveCounter(ctx, "individual", 7))
	require.NoError(t, sink.SaveCounter(ctx, "individual", 4))
	snap, err := sink.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), snap.Counters["individual"])
}

func TestLoadIgnoresForeignKeysAndRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemory()
	_, err := blobs.Put(ctx, "collections/readme.txt", bytes.NewReader([]byte("hi")), blob.PutOptions{})
	require.NoError(t, err)
	_, err = blobs.Put(ctx, "collections/nested/x.json", bytes.NewReader([]byte("[]")), blob.PutOptions{})
	require.NoError(t, err)

	sink := NewSink(blobs, "")
	snap, err := sink.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Collections)

	_, err = blobs.Put(ctx, "collections/cohort.json", bytes.NewReader([]byte("{oops")), blob.PutOptions{})
	require.NoError(t, err)
	_, err = sink.Load(ctx)
	require.ErrorContains(t, err, "decode cohort")

	_, err = blobs.Put(ctx, "counters/cohort.json", bytes.NewReader([]byte("NaN")), blob.PutOptions{})
	require.NoError(t, err)
	require.Error(t, sink.SaveCounter(ctx, "cohort", 1))
}
