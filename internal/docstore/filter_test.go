package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cohortDoc() Document {
	doc, err := Encode(map[string]any{
		"_id":      7,
		"name":     "c7",
		"age":      25,
		"score":    1.5,
		"samples":  []int64{1, 2, 3},
		"status":   map[string]any{"name": "ACTIVE", "date": "20240101000000"},
		"tags":     []string{"x", "y"},
		"acls":     []any{map[string]any{"permissions": []string{"VIEW"}, "members": []string{"a", "b"}}},
		"verified": true,
		"annotationSets": []any{
			map[string]any{"name": "as1", "variableSetId": 3, "annotations": map[string]any{"age": 40, "sex": "F"}},
			map[string]any{"name": "as2", "variableSetId": 4, "annotations": map[string]any{"age": 12, "sex": "M"}},
		},
	})
	if err != nil {
		panic(err)
	}
	return doc
}

func TestLookupFansOutAcrossArrays(t *testing.T) {
	doc := cohortDoc()
	assert.Len(t, Lookup(doc, "acls.members"), 3) // array + two elements
	assert.Empty(t, Lookup(doc, "missing.path"))
	vals := Lookup(doc, "annotationSets.annotations.age")
	assert.ElementsMatch(t, []any{int64(40), int64(12)}, vals)
	assert.Equal(t, []any{"as2"}, Lookup(doc, "annotationSets.1.name"))
}

func TestComparisonNumericOrdering(t *testing.T) {
	doc := cohortDoc()
	assert.True(t, Gt("age", 20).Match(doc))
	assert.False(t, Gt("age", 30).Match(doc))
	assert.True(t, Lte("age", 25.0).Match(doc))
	assert.True(t, Lt("score", 2).Match(doc))
	// mixed classes never compare
	assert.False(t, Gt("age", "2").Match(doc))
}

func TestEqualityAcrossArrays(t *testing.T) {
	doc := cohortDoc()
	assert.True(t, Eq("samples", 2).Match(doc))
	assert.True(t, Eq("samples", []int64{1, 2, 3}).Match(doc))
	assert.False(t, Eq("samples", []int64{1, 2}).Match(doc))
	assert.True(t, Ne("samples", 9).Match(doc))
	assert.False(t, Ne("samples", 1).Match(doc))
}

func TestNullEqualityMatchesMissing(t *testing.T) {
	doc := cohortDoc()
	assert.True(t, Eq("nope", nil).Match(doc))
	assert.False(t, Eq("name", nil).Match(doc))
}

func TestInAndNin(t *testing.T) {
	doc := cohortDoc()
	assert.True(t, AnyOf("tags", "z", "y").Match(doc))
	assert.False(t, AnyOf("tags", "z").Match(doc))
	assert.True(t, NoneOf("status.name", "DELETED", "REMOVED").Match(doc))
	assert.True(t, NoneOf("missing", "DELETED").Match(doc))
	assert.False(t, NoneOf("status.name", "ACTIVE").Match(doc))
}

func TestExistsRegexAndSize(t *testing.T) {
	doc := cohortDoc()
	assert.True(t, Exists{Path: "status.date", Present: true}.Match(doc))
	assert.True(t, Exists{Path: "status.message", Present: false}.Match(doc))
	assert.True(t, Regex{Path: "name", Pattern: "^c[0-9]$"}.Match(doc))
	assert.False(t, Regex{Path: "name", Pattern: "["}.Match(doc))
	assert.True(t, Size{Path: "samples", N: 3}.Match(doc))
	assert.False(t, Size{Path: "samples", N: 2}.Match(doc))
}

func TestElemMatchRequiresSingleElement(t *testing.T) {
	doc := cohortDoc()
	sameElem := ElemMatch{Path: "annotationSets", Filter: AllOf(Eq("variableSetId", 3), Gt("annotations.age", 30))}
	assert.True(t, sameElem.Match(doc))

	// age>30 holds in as1 and sex=M holds in as2, never in one element.
	crossElem := ElemMatch{Path: "annotationSets", Filter: AllOf(Gt("annotations.age", 30), Eq("annotations.sex", "M"))}
	assert.False(t, crossElem.Match(doc))
	flat := AllOf(Gt("annotationSets.annotations.age", 30), Eq("annotationSets.annotations.sex", "M"))
	assert.True(t, flat.Match(doc))
}

func TestBooleanCombinators(t *testing.T) {
	doc := cohortDoc()
	assert.True(t, All{}.Match(doc))
	assert.True(t, And{}.Match(doc))
	assert.False(t, Or{}.Match(doc))
	assert.True(t, Or{Eq("name", "nope"), Eq("verified", true)}.Match(doc))
	assert.True(t, Not{Filter: Eq("name", "nope")}.Match(doc))
}

func TestAllOfFlattens(t *testing.T) {
	assert.Equal(t, All{}, AllOf())
	assert.Equal(t, All{}, AllOf(All{}, nil))
	single := Eq("a", 1)
	assert.Equal(t, single, AllOf(All{}, single))
	got := AllOf(And{Eq("a", 1), Eq("b", 2)}, Eq("c", 3))
	require.IsType(t, And{}, got)
	assert.Len(t, got.(And), 3)
}

func TestEncodeDecodeNormalizesNumbers(t *testing.T) {
	type rec struct {
		ID    int64   `json:"_id"`
		Ratio float64 `json:"ratio"`
		Tags  []string
	}
	doc, err := Encode(rec{ID: 4, Ratio: 0.5, Tags: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, int64(4), doc["_id"])
	assert.Equal(t, 0.5, doc["ratio"])
	assert.Equal(t, []any{"a"}, doc["Tags"])

	var back rec
	require.NoError(t, Decode(doc, &back))
	assert.Equal(t, rec{ID: 4, Ratio: 0.5, Tags: []string{"a"}}, back)
}

func TestDocumentAccessors(t *testing.T) {
	doc := cohortDoc()
	id, ok := doc.Int64("_id")
	require.True(t, ok)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, "ACTIVE", doc.String("status.name"))
	_, ok = doc.Int64("score")
	assert.False(t, ok)

	clone := doc.Clone()
	clone["status"].(map[string]any)["name"] = "DELETED"
	assert.Equal(t, "ACTIVE", doc.String("status.name"))
}

func TestKeyIsStableAcrossNumericTypes(t *testing.T) {
	assert.Equal(t, Key(map[string]any{"a": int64(1), "b": "x"}), Key(map[string]any{"b": "x", "a": 1.0}))
}
