package catalog

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/internal/infra/docstore/memory"
	"github.com/bart-jansen/opencga/internal/query"
	"github.com/bart-jansen/opencga/internal/telemetry"
	"github.com/bart-jansen/opencga/pkg/domain"
)

const study = int64(10)

type fakeDirectory struct{}

func (fakeDirectory) StudyExists(_ context.Context, id int64) (bool, error) { return id == study, nil }

func (fakeDirectory) ResolvePrincipals(_ context.Context, id int64, members []string) ([]string, error) {
	var missing []string
	for _, m := range members {
		if !slices.Contains([]string{"u1", "u2", "u3", "@admins"}, m) {
			missing = append(missing, m)
		}
	}
	if len(missing) > 0 {
		return nil, domain.PrincipalNotFoundError{StudyID: id, Members: missing}
	}
	return members, nil
}

type fakeSchemas map[int64]domain.VariableSet

func (f fakeSchemas) VariableSet(_ context.Context, id int64) (domain.VariableSet, error) {
	vs, ok := f[id]
	if !ok {
		return domain.VariableSet{}, domain.NotFoundError{Entity: "variable_set", ID: id}
	}
	return vs, nil
}

// trackingStore hands out collections whose cursors can be inspected.
type trackingStore struct {
	*memory.Store
	cursors []*docstore.SliceCursor
}

func (s *trackingStore) Collection(name string) docstore.Collection {
	return &trackingCollection{Collection: s.Store.Collection(name), store: s}
}

type trackingCollection struct {
	docstore.Collection
	store *trackingStore
}

func (c *trackingCollection) Find(ctx context.Context, f docstore.Filter, opts docstore.FindOptions) (docstore.Cursor, error) {
	cur, err := c.Collection.Find(ctx, f, opts)
	if sc, ok := cur.(*docstore.SliceCursor); ok {
		c.store.cursors = append(c.store.cursors, sc)
	}
	return cur, err
}

var fixedNow = time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)

func newCohorts(t *testing.T) (*Adaptor[domain.Cohort], *trackingStore) {
	t.Helper()
	ctx := context.Background()
	store := &trackingStore{Store: newCohortsStore()}
	a, err := New(ctx, store, Cohorts(), fakeDirectory{},
		WithClock(telemetry.ClockFunc(func() time.Time { return fixedNow })),
		WithVariableSets(fakeSchemas{7: {ID: 7, Variables: []domain.Variable{{ID: "age", Type: domain.VariableInteger}}}}),
	)
	require.NoError(t, err)
	return a, store
}

// newCohortsStore returns a store holding samples 101-103 of the test study.
func newCohortsStore() *memory.Store {
	store := memory.NewStore()
	samples := store.Collection(string(domain.KindSample))
	for _, id := range []int64{101, 102, 103} {
		_ = samples.Insert(context.Background(), docstore.Document{
			"_id": id, "_studyId": study, "name": "s",
			"status": map[string]any{"name": "ACTIVE", "date": "20240101000000"},
		})
	}
	return store
}

func create(t *testing.T, a *Adaptor[domain.Cohort], name string, typ domain.CohortType, samples ...int64) domain.Cohort {
	t.Helper()
	c, err := a.Create(context.Background(), study, domain.Cohort{
		Base:    domain.Base{Name: name},
		Type:    typ,
		Samples: samples,
	})
	require.NoError(t, err)
	return c
}

func TestNewValidatesArguments(t *testing.T) {
	ctx := context.Background()
	_, err := New[domain.Cohort](ctx, nil, Cohorts(), fakeDirectory{})
	require.Error(t, err)
	_, err = New(ctx, memory.NewStore(), Cohorts(), nil)
	require.Error(t, err)
	_, err = New(ctx, memory.NewStore(), Kind[domain.Cohort]{}, fakeDirectory{})
	require.Error(t, err)
}

func TestCreateRoundTrip(t *testing.T) {
	a, _ := newCohorts(t)
	ctx := context.Background()
	in := domain.Cohort{
		Base: domain.Base{
			Name:       "cases",
			Attributes: map[string]any{"site": "leiden"},
		},
		Type:        domain.CohortCaseSet,
		Description: "all cases",
		Samples:     []int64{101, 102},
		Stats:       map[string]any{"depth": 31.5},
	}
	created, err := a.Create(ctx, study, in)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, study, created.StudyID)
	assert.Equal(t, domain.Status{Name: domain.StatusActive, Date: "20240305103000"}, created.Status)
	assert.Equal(t, "20240305103000", created.CreationDate)

	got, err := a.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Equal(t, in.Name, got.Name)
	assert.Equal(t, in.Type, got.Type)
	assert.Equal(t, in.Description, got.Description)
	assert.Equal(t, in.Samples, got.Samples)
	assert.Equal(t, in.Stats, got.Stats)
	assert.Equal(t, in.Attributes, got.Attributes)
	assert.Empty(t, got.Acls)
	assert.Empty(t, got.AnnotationSets)

	owner, err := a.StudyOf(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, study, owner)
}

func TestCreateValidation(t *testing.T) {
	a, _ := newCohorts(t)
	ctx := context.Background()

	_, err := a.Create(ctx, study, domain.Cohort{})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = a.Create(ctx, study, domain.Cohort{Base: domain.Base{Name: "x"}, Type: "NOPE"})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = a.Create(ctx, 99, domain.Cohort{Base: domain.Base{Name: "x"}})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = a.Create(ctx, study, domain.Cohort{Base: domain.Base{Name: "x"}, Samples: []int64{101, 999}})
	var nf domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, domain.KindSample, nf.Entity)
	assert.Equal(t, int64(999), nf.ID)

	n, err := a.Count(ctx, query.Query{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateDuplicateNameLeavesNoDocument(t *testing.T) {
	a, store := newCohorts(t)
	ctx := context.Background()
	create(t, a, "dup", domain.CohortCollection)

	_, err := a.Create(ctx, study, domain.Cohort{Base: domain.Base{Name: "dup"}})
	var exists domain.AlreadyExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, "name", exists.Field)
	assert.Len(t, store.ExportCollection(string(domain.KindCohort)), 1)
}

func TestStoreRejectionMapsToAlreadyExists(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	// Skip the friendly pre-check by racing an insert through the collection.
	a, err := New(ctx, store, Cohorts(), fakeDirectory{}, WithExistence(noExistence{}))
	require.NoError(t, err)
	racing := &racingCollection{Collection: store.Collection("cohort")}
	a.coll = racing

	_, err = a.Create(ctx, study, domain.Cohort{Base: domain.Base{Name: "race"}})
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Len(t, store.ExportCollection("cohort"), 1)
}

type noExistence struct{}

func (noExistence) Exists(context.Context, int64, domain.EntityKind, []int64) error { return nil }

// racingCollection inserts a competing document right before the first insert.
type racingCollection struct {
	docstore.Collection
	raced bool
}

func (c *racingCollection) Insert(ctx context.Context, doc docstore.Document) error {
	if !c.raced {
		c.raced = true
		other := doc.Clone()
		other["_id"] = int64(1000)
		if err := c.Collection.Insert(ctx, other); err != nil {
			return err
		}
	}
	return c.Collection.Insert(ctx, doc)
}

func TestDeletedNamesCanBeReused(t *testing.T) {
	a, _ := newCohorts(t)
	ctx := context.Background()
	first := create(t, a, "reuse", domain.CohortCollection)
	_, err := a.Delete(ctx, first.ID)
	require.NoError(t, err)

	second := create(t, a, "reuse", domain.CohortCollection)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestSearchAndCount(t *testing.T) {
	a, _ := newCohorts(t)
	ctx := context.Background()
	create(t, a, "c1", domain.CohortCaseSet, 101)
	create(t, a, "c2", domain.CohortControlSet, 102)
	c3 := create(t, a, "c3", domain.CohortCaseSet, 101, 103)
	_, err := a.Delete(ctx, c3.ID)
	require.NoError(t, err)

	got, err := a.Search(ctx, query.Query{"type": "CASE_SET"}, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].Name)

	got, err = a.Search(ctx, query.Query{"samples": "101", "status": "DELETED"}, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c3", got[0].Name)

	n, err := a.Count(ctx, query.Query{"name": "c1,c2,c3"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err = a.Search(ctx, query.Query{}, Options{Sort: []string{"name"}, Descending: true, Limit: 1, Include: []string{"id", "name"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c2", got[0].Name)
	assert.Empty(t, got[0].Type)

	_, err = a.Search(ctx, query.Query{"nope": "1"}, Options{})
	require.ErrorIs(t, err, domain.ErrUnknownQueryParam)

	_, err = a.Search(ctx, query.Query{}, Options{Include: []string{"name"}, Exclude: []string{"type"}})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	values, err := a.Distinct(ctx, query.Query{}, "type")
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"CASE_SET", "CONTROL_SET"}, values)
}

func TestSearchTypesAnnotationsWithPinnedVariableSet(t *testing.T) {
	a, store := newCohorts(t)
	ctx := context.Background()
	c := create(t, a, "annotated", domain.CohortCollection)
	_, err := store.Collection("cohort").Update(ctx, docstore.Eq("_id", c.ID), []docstore.Mutation{
		docstore.PushValues("annotationSets", map[string]any{"name": "a", "variableSetId": int64(7), "annotations": map[string]any{"age": int64(42)}}),
	})
	require.NoError(t, err)

	n, err := a.Count(ctx, query.Query{"variableSetId": "7", "annotation.age": ">40"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = a.Count(ctx, query.Query{"variableSetId": "7", "annotation.height": "1"})
	require.ErrorIs(t, err, domain.ErrInvalidQueryValue)

	_, err = a.Count(ctx, query.Query{"variableSetId": "8", "annotation.age": "1"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIterateReleasesCursor(t *testing.T) {
	a, store := newCohorts(t)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		create(t, a, name, domain.CohortCollection)
	}
	store.cursors = nil

	var seen []string
	for c, err := range a.Iterate(ctx, query.Query{}, Options{}) {
		require.NoError(t, err)
		seen = append(seen, c.Name)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, seen)
	require.Len(t, store.cursors, 1)
	assert.True(t, store.cursors[0].Closed())

	stop := errors.New("stop")
	err := a.ForEach(ctx, query.Query{}, Options{}, func(c domain.Cohort) error {
		if c.Name == "b" {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	require.Len(t, store.cursors, 2)
	assert.True(t, store.cursors[1].Closed())

	var failed error
	for _, err := range a.Iterate(ctx, query.Query{"type": "NOPE"}, Options{}) {
		failed = err
	}
	require.ErrorIs(t, failed, domain.ErrInvalidQueryValue)
}

func TestOperationsHonorDeadlines(t *testing.T) {
	a, _ := newCohorts(t)
	bounded, cancel := a.bound(context.Background())
	defer cancel()
	_, ok := bounded.Deadline()
	assert.True(t, ok)

	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := a.Count(expired, query.Query{})
	require.ErrorIs(t, err, domain.ErrTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
