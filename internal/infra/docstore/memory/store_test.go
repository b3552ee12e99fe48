package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bart-jansen/opencga/internal/docstore"
)

func seed(t *testing.T, s *Store) docstore.Collection {
	t.Helper()
	ctx := context.Background()
	coll := s.Collection("cohort")
	require.NoError(t, s.EnsureIndex(ctx, "cohort", docstore.Index{
		Name:    "study_name",
		Keys:    []string{"_studyId", "name"},
		Unique:  true,
		Partial: docstore.Eq("status.name", "ACTIVE"),
	}))
	for i, name := range []string{"a", "b", "c"} {
		require.NoError(t, coll.Insert(ctx, docstore.Document{
			"_id": int64(i + 1), "_studyId": int64(10), "name": name,
			"status":  map[string]any{"name": "ACTIVE"},
			"samples": []any{int64(i), int64(i + 1)},
		}))
	}
	return coll
}

func TestInsertRejectsDuplicateIDAndUniqueIndex(t *testing.T) {
	s := NewStore()
	coll := seed(t, s)
	ctx := context.Background()

	err := coll.Insert(ctx, docstore.Document{"_id": int64(1), "name": "zz"})
	require.ErrorIs(t, err, docstore.ErrDuplicateKey)

	err = coll.Insert(ctx, docstore.Document{"_id": int64(9), "_studyId": int64(10), "name": "a", "status": map[string]any{"name": "ACTIVE"}})
	require.ErrorIs(t, err, docstore.ErrDuplicateKey)

	// outside the partial filter the name may repeat
	require.NoError(t, coll.Insert(ctx, docstore.Document{"_id": int64(10), "_studyId": int64(10), "name": "a", "status": map[string]any{"name": "DELETED"}}))
	// other studies are independent
	require.NoError(t, coll.Insert(ctx, docstore.Document{"_id": int64(11), "_studyId": int64(11), "name": "a", "status": map[string]any{"name": "ACTIVE"}}))

	_, err = coll.Count(ctx, nil)
	require.NoError(t, err)
	n, _ := coll.Count(ctx, docstore.Eq("name", "a"))
	assert.Equal(t, int64(3), n)
}

func TestInsertRequiresID(t *testing.T) {
	err := NewStore().Collection("x").Insert(context.Background(), docstore.Document{"name": "a"})
	require.Error(t, err)
}

func TestUpdateCountsMatchedAndModified(t *testing.T) {
	s := NewStore()
	coll := seed(t, s)
	ctx := context.Background()

	res, err := coll.Update(ctx, docstore.AnyOf("name", "a", "b"), []docstore.Mutation{docstore.SetValue("description", "d")})
	require.NoError(t, err)
	assert.Equal(t, docstore.UpdateResult{Matched: 2, Modified: 2}, res)

	res, err = coll.Update(ctx, docstore.AnyOf("name", "a", "b"), []docstore.Mutation{docstore.SetValue("description", "d")})
	require.NoError(t, err)
	assert.Equal(t, docstore.UpdateResult{Matched: 2, Modified: 0}, res)
}

func TestUpdateIsAllOrNothingOnUniqueViolation(t *testing.T) {
	s := NewStore()
	coll := seed(t, s)
	ctx := context.Background()

	_, err := coll.Update(ctx, docstore.Eq("name", "b"), []docstore.Mutation{docstore.SetValue("name", "a")})
	require.ErrorIs(t, err, docstore.ErrDuplicateKey)
	n, _ := coll.Count(ctx, docstore.Eq("name", "b"))
	assert.Equal(t, int64(1), n)
}

func TestFindReturnsCopies(t *testing.T) {
	s := NewStore()
	coll := seed(t, s)
	ctx := context.Background()

	docs, err := docstore.FindAll(ctx, coll, docstore.Eq("_id", 1), docstore.FindOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	docs[0]["name"] = "mutated"

	again, _, err := docstore.FindOne(ctx, coll, docstore.Eq("_id", 1), docstore.Projection{})
	require.NoError(t, err)
	assert.Equal(t, "a", again.String("name"))
}

func TestDistinctFlattensArrays(t *testing.T) {
	s := NewStore()
	coll := seed(t, s)
	vals, err := coll.Distinct(context.Background(), "samples", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{int64(0), int64(1), int64(2), int64(3)}, vals)
}

func TestAggregateGroups(t *testing.T) {
	s := NewStore()
	coll := seed(t, s)
	out, err := coll.Aggregate(context.Background(), docstore.Pipeline{
		docstore.Group{By: []string{"_studyId"}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(3), out[0][docstore.CountField])
}

func TestNextIDIsStrictlyIncreasingUnderConcurrency(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	const workers, per = 8, 50
	ids := make(chan int64, workers*per)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				id, err := s.NextID(ctx, "cohort")
				if err != nil {
					t.Error(err)
					return
				}
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)
	seen := map[int64]bool{}
	for id := range ids {
		require.False(t, seen[id], "duplicate id %d", id)
		require.Positive(t, id)
		seen[id] = true
	}
	assert.Len(t, seen, workers*per)
}

func TestClosedStoreAndCancelledContext(t *testing.T) {
	s := NewStore()
	coll := s.Collection("x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, coll.Insert(ctx, docstore.Document{"_id": int64(1)}), context.Canceled)

	require.NoError(t, s.Close(context.Background()))
	_, err := s.NextID(context.Background(), "x")
	require.ErrorIs(t, err, docstore.ErrClosed)
}

func TestExportImportRoundTrip(t *testing.T) {
	s := NewStore()
	seed(t, s)
	_, _ = s.NextID(context.Background(), "cohort")
	snap := s.ExportState()

	other := NewStore()
	other.ImportState(snap)
	assert.Equal(t, []string{"cohort"}, other.CollectionNames())
	n, err := other.Collection("cohort").Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	id, err := other.NextID(context.Background(), "cohort")
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
}

func TestEnsureIndexRejectsExistingViolation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	coll := s.Collection("x")
	require.NoError(t, coll.Insert(ctx, docstore.Document{"_id": int64(1), "k": "v"}))
	require.NoError(t, coll.Insert(ctx, docstore.Document{"_id": int64(2), "k": "v"}))
	err := s.EnsureIndex(ctx, "x", docstore.Index{Name: "k", Keys: []string{"k"}, Unique: true})
	require.ErrorIs(t, err, docstore.ErrDuplicateKey)
}
