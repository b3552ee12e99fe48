package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/bart-jansen/opencga/internal/docstore"
)

func op(path, name string, v any) bson.D {
	return bson.D{{Key: path, Value: bson.D{{Key: name, Value: v}}}}
}

func TestTranslateFilter(t *testing.T) {
	got, err := translateFilter(docstore.AllOf(
		docstore.Eq("_studyId", 4),
		docstore.AnyOf("_id", 1, 2),
		docstore.NoneOf("status.name", "DELETED", "REMOVED"),
	))
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "$and", Value: bson.A{
		op("_studyId", "$eq", int64(4)),
		op("_id", "$in", bson.A{int64(1), int64(2)}),
		op("status.name", "$nin", bson.A{"DELETED", "REMOVED"}),
	}}}, got)

	got, err = translateFilter(docstore.All{})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = translateFilter(docstore.Or{})
	require.NoError(t, err)
	assert.Equal(t, matchNothing, got)

	got, err = translateFilter(docstore.Not{Filter: docstore.Regex{Path: "name", Pattern: "^c"}})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "$nor", Value: bson.A{op("name", "$regex", "^c")}}}, got)
}

func TestTranslateElemMatchKeepsRelativePaths(t *testing.T) {
	got, err := translateFilter(docstore.ElemMatch{
		Path: "annotationSets",
		Filter: docstore.AllOf(
			docstore.Eq("variableSetId", 7),
			docstore.Gte("annotations.age", 18),
		),
	})
	require.NoError(t, err)
	want := op("annotationSets", "$elemMatch", bson.D{{Key: "$and", Value: bson.A{
		op("variableSetId", "$eq", int64(7)),
		op("annotations.age", "$gte", int64(18)),
	}}})
	assert.Equal(t, want, got)
}

func TestTranslateUpdateSplitsOverlappingPaths(t *testing.T) {
	updates, err := translateUpdate([]docstore.Mutation{
		docstore.ElemUpdate{
			Path:      "acls",
			Where:     docstore.AnyOf("members", "u1"),
			Mutations: []docstore.Mutation{docstore.PullAll("members", "u1")},
		},
		docstore.PullWhere{Path: "acls", Filter: docstore.Size{Path: "members", N: 0}},
	})
	require.NoError(t, err)
	require.Len(t, updates, 2)

	assert.Equal(t, bson.D{{Key: "$pull", Value: bson.D{
		{Key: "acls.$[e0].members", Value: bson.D{{Key: "$in", Value: bson.A{"u1"}}}},
	}}}, updates[0].Document())
	assert.Equal(t, []any{op("e0.members", "$in", bson.A{"u1"})}, updates[0].arrayFilters)

	assert.Equal(t, bson.D{{Key: "$pull", Value: bson.D{
		{Key: "acls", Value: op("members", "$size", int64(0))},
	}}}, updates[1].Document())
}

func TestTranslateUpdateGroupsDisjointPaths(t *testing.T) {
	updates, err := translateUpdate([]docstore.Mutation{
		docstore.SetValue("_id", 9),
		docstore.SetValue("status.name", "DELETED"),
		docstore.SetValue("status.date", "20240101000000"),
		docstore.PushValues("samples", 3),
		docstore.Unset{Path: "description"},
		docstore.ElemUpdate{Path: "acls", Mutations: []docstore.Mutation{docstore.AddValues("permissions", "VIEW")}},
	})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "status.name", Value: "DELETED"},
			{Key: "status.date", Value: "20240101000000"},
		}},
		{Key: "$push", Value: bson.D{{Key: "samples", Value: bson.D{{Key: "$each", Value: bson.A{int64(3)}}}}}},
		{Key: "$unset", Value: bson.D{{Key: "description", Value: ""}}},
		{Key: "$addToSet", Value: bson.D{{Key: "acls.$[].permissions", Value: bson.D{{Key: "$each", Value: bson.A{"VIEW"}}}}}},
	}, updates[0].Document())
	assert.Empty(t, updates[0].arrayFilters)
}

func TestTranslateUpdateRejectsNestedElemUpdate(t *testing.T) {
	_, err := translateUpdate([]docstore.Mutation{docstore.ElemUpdate{
		Path:      "a",
		Mutations: []docstore.Mutation{docstore.ElemUpdate{Path: "b"}},
	}})
	require.ErrorContains(t, err, "nested")
}

func TestTranslatePipeline(t *testing.T) {
	stages, err := translatePipeline(docstore.Pipeline{
		docstore.Match{Filter: docstore.Eq("_studyId", 1)},
		docstore.Unwind{Path: "samples"},
		docstore.Group{By: []string{"status.name"}, Collect: "_id"},
		docstore.Sort{Fields: []docstore.SortField{{Path: "count", Desc: true}}},
		docstore.Skip{N: 1},
		docstore.Limit{N: 5},
		docstore.Project{Projection: docstore.Projection{}},
	})
	require.NoError(t, err)
	assert.Equal(t, []bson.D{
		{{Key: "$match", Value: op("_studyId", "$eq", int64(1))}},
		{{Key: "$unwind", Value: "$samples"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "status_name", Value: "$status.name"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "items", Value: bson.D{{Key: "$push", Value: "$_id"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}}}},
		{{Key: "$skip", Value: int64(1)}},
		{{Key: "$limit", Value: int64(5)}},
	}, stages)
}

func TestTranslateProjection(t *testing.T) {
	assert.Nil(t, translateProjection(docstore.Projection{}))
	assert.Equal(t, bson.D{{Key: "name", Value: 1}}, translateProjection(docstore.Projection{Include: []string{"name"}}))
	assert.Equal(t, bson.D{{Key: "acls", Value: 0}}, translateProjection(docstore.Projection{Exclude: []string{"acls"}}))
}

func TestFromBSONNormalizesDriverTypes(t *testing.T) {
	doc := toDocument(bson.M{
		"_id":     int32(3),
		"samples": bson.A{int32(1), int64(2)},
		"status":  bson.D{{Key: "name", Value: "ACTIVE"}},
		"ratio":   0.5,
	})
	assert.Equal(t, docstore.Document{
		"_id":     int64(3),
		"samples": []any{int64(1), int64(2)},
		"status":  map[string]any{"name": "ACTIVE"},
		"ratio":   0.5,
	}, doc)
}
