package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/pkg/domain"
)

var testTable = NewParamTable(CommonParams()...).With(
	Param{Key: "age", Path: "age", Kind: Integer},
	Param{Key: "score", Path: "score", Kind: Decimal},
	Param{Key: "alive", Path: "alive", Kind: Boolean},
	Param{Key: "type", Path: "type", Kind: Enum, Enum: []string{"CASE", "CONTROL"}},
	Param{Key: "samples", Path: "samples", Kind: IntegerList},
	Param{Key: "tags", Path: "tags", Kind: TextList},
	Param{Key: "description", Path: "description", Kind: Text},
)

func doc(fields map[string]any) map[string]any {
	out := map[string]any{"status": map[string]any{"name": "ACTIVE"}}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func compile(t *testing.T, q Query) docstore.Filter {
	t.Helper()
	f, err := Compile(q, testTable, nil)
	require.NoError(t, err)
	return f
}

func TestDefaultStatusInjectedUnlessCallerConstrainsIt(t *testing.T) {
	q := Query{"name": "c1"}
	f := compile(t, q)
	assert.Equal(t, Query{"name": "c1"}, q, "caller query must stay untouched")
	assert.Equal(t, docstore.And{
		docstore.Eq("name", "c1"),
		docstore.NoneOf("status.name", "DELETED", "REMOVED"),
	}, f)

	assert.Equal(t, docstore.NoneOf("status.name", "DELETED", "REMOVED"), compile(t, Query{}))

	for _, key := range []string{"status", "status.name"} {
		f := compile(t, Query{key: "DELETED"})
		assert.Equal(t, docstore.Eq("status.name", "DELETED"), f, key)
	}

	deleted := doc(map[string]any{"status": map[string]any{"name": "DELETED"}})
	assert.False(t, compile(t, Query{}).Match(deleted))
	assert.True(t, compile(t, Query{"status": "ACTIVE,DELETED"}).Match(deleted))
}

func TestCompileExactEmptyIsAll(t *testing.T) {
	f, err := CompileExact(Query{}, testTable, nil)
	require.NoError(t, err)
	assert.Equal(t, docstore.All{}, f)
	assert.True(t, f.Match(map[string]any{}))
}

func TestOrAndAndSemantics(t *testing.T) {
	or := compile(t, Query{"name": "a,b"})
	assert.True(t, or.Match(doc(map[string]any{"name": "a"})))
	assert.True(t, or.Match(doc(map[string]any{"name": "b"})))
	assert.False(t, or.Match(doc(map[string]any{"name": "c"})))

	and := compile(t, Query{"tags": "a;b"})
	assert.True(t, and.Match(doc(map[string]any{"tags": []any{"a", "b", "x"}})))
	assert.False(t, and.Match(doc(map[string]any{"tags": []any{"a"}})))

	f, err := CompileExact(Query{"name": "a,b"}, testTable, nil)
	require.NoError(t, err)
	assert.Equal(t, docstore.AnyOf("name", "a", "b"), f)

	f, err = CompileExact(Query{"name": []string{"x,y", "z"}}, testTable, nil)
	require.NoError(t, err)
	assert.Equal(t, docstore.AnyOf("name", "x,y", "z"), f, "slice elements are verbatim branches")
}

func TestNumericComparisonsAreNumeric(t *testing.T) {
	f := compile(t, Query{"age": ">20"})
	assert.True(t, f.Match(doc(map[string]any{"age": int64(25)})))
	assert.False(t, f.Match(doc(map[string]any{"age": int64(15)})))

	between := compile(t, Query{"age": ">=18;<65"})
	assert.True(t, between.Match(doc(map[string]any{"age": int64(18)})))
	assert.False(t, between.Match(doc(map[string]any{"age": int64(9)})))
	assert.False(t, between.Match(doc(map[string]any{"age": int64(65)})))

	decimal := compile(t, Query{"score": "<=0.5"})
	assert.True(t, decimal.Match(doc(map[string]any{"score": 0.25})))
	assert.True(t, decimal.Match(doc(map[string]any{"score": int64(0)})))
	assert.False(t, decimal.Match(doc(map[string]any{"score": 0.75})))

	typedValue := compile(t, Query{"age": int64(30)})
	assert.True(t, typedValue.Match(doc(map[string]any{"age": int64(30)})))
}

func TestListFieldsUseAnyOf(t *testing.T) {
	f := compile(t, Query{"samples": "3,9"})
	assert.True(t, f.Match(doc(map[string]any{"samples": []any{int64(1), int64(9)}})))
	assert.False(t, f.Match(doc(map[string]any{"samples": []any{int64(1), int64(2)}})))

	f = compile(t, Query{"samples": []int64{5}})
	assert.True(t, f.Match(doc(map[string]any{"samples": []any{int64(5)}})))
}

func TestIDAliasAndAttributes(t *testing.T) {
	f, err := CompileExact(Query{"id": "4", "studyId": int64(2)}, testTable, nil)
	require.NoError(t, err)
	assert.Equal(t, docstore.And{docstore.Eq("_id", 4), docstore.Eq("_studyId", 2)}, f)

	f = compile(t, Query{"nattributes.height": ">1.5", "battributes.smoker": "false", "attributes.site": "lab"})
	d := doc(map[string]any{"attributes": map[string]any{"height": 1.8, "smoker": false, "site": "lab"}})
	assert.True(t, f.Match(d))
	d["attributes"].(map[string]any)["smoker"] = true
	assert.False(t, f.Match(d))
}

func TestEnumBooleanAndRegex(t *testing.T) {
	f := compile(t, Query{"type": "case"})
	assert.True(t, f.Match(doc(map[string]any{"type": "CASE"})))

	f = compile(t, Query{"alive": "!=true"})
	assert.True(t, f.Match(doc(map[string]any{"alive": false})))

	f = compile(t, Query{"description": "~^whole.*genome$"})
	assert.True(t, f.Match(doc(map[string]any{"description": "whole exome and genome"})))
	assert.False(t, f.Match(doc(map[string]any{"description": "panel"})))
}

func TestDateExpansion(t *testing.T) {
	at := func(date string) map[string]any { return doc(map[string]any{"creationDate": date}) }
	cases := []struct {
		expr string
		in   []string
		out  []string
	}{
		{"2023", []string{"20230101000000", "20231231235959"}, []string{"20221231235959", "20240101000000"}},
		{"202302", []string{"20230228120000"}, []string{"20230301000000"}},
		{"20230215", []string{"20230215000000", "20230215235959"}, []string{"20230216000000"}},
		{">2023", []string{"20240101000000"}, []string{"20231231235959"}},
		{">=2023", []string{"20230101000000"}, []string{"20221231235959"}},
		{"<2023", []string{"20221231235959"}, []string{"20230101000000"}},
		{"<=2023", []string{"20231231235959"}, []string{"20240101000000"}},
		{"!=2023", []string{"20221231235959", "20240101000000"}, []string{"20230601000000"}},
		{"2020-2021", []string{"20200101000000", "20211231235959"}, []string{"20191231235959", "20220101000000"}},
		{"2023,2025", []string{"20230505000000", "20250505000000"}, []string{"20240505000000"}},
	}
	for _, tc := range cases {
		f := compile(t, Query{"creationDate": tc.expr})
		for _, d := range tc.in {
			assert.True(t, f.Match(at(d)), "%s should match %s", tc.expr, d)
		}
		for _, d := range tc.out {
			assert.False(t, f.Match(at(d)), "%s should not match %s", tc.expr, d)
		}
	}
}

func TestMalformedValuesFailBeforeAnything(t *testing.T) {
	cases := []Query{
		{"age": "abc"},
		{"age": ">>3"},
		{"age": "!="},
		{"age": ""},
		{"name": "a,,b"},
		{"alive": ">true"},
		{"alive": "maybe"},
		{"type": "OTHER"},
		{"type": ">CASE"},
		{"age": "~1"},
		{"description": "~("},
		{"creationDate": "20231"},
		{"creationDate": "2023x"},
		{"creationDate": ">2020-2021"},
		{"creationDate": "2022-2021"},
		{"creationDate": "~2021"},
		{"score": "1.2.3"},
		{"name": map[string]any{}},
		{"annotation": "x"},
		{"samples": []int64{}},
	}
	for _, q := range cases {
		_, err := Compile(q, testTable, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidQueryValue, "%v", q)
		var qe domain.QueryError
		assert.ErrorAs(t, err, &qe)
	}
	_, err := Compile(Query{"unknown": "1"}, testTable, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownQueryParam)
}

var testSchema = &domain.VariableSet{
	ID:   7,
	Name: "phenotype",
	Variables: []domain.Variable{
		{ID: "age", Type: domain.VariableInteger},
		{ID: "weight", Type: domain.VariableDouble},
		{ID: "smoker", Type: domain.VariableBoolean},
		{ID: "notes", Type: domain.VariableText},
		{ID: "stage", Type: domain.VariableCategorical, AllowedValues: []string{"EARLY", "LATE"}},
		{ID: "address", Type: domain.VariableObject, Variables: []domain.Variable{
			{ID: "city", Type: domain.VariableText},
			{ID: "zip", Type: domain.VariableInteger},
		}},
	},
}

func annotated(sets ...map[string]any) map[string]any {
	arr := make([]any, len(sets))
	for i, s := range sets {
		arr[i] = s
	}
	return doc(map[string]any{"annotationSets": arr})
}

func TestAnnotationPredicatesHoldWithinOneSet(t *testing.T) {
	q := Query{"variableSetId": "7", "annotation.age": ">40", "annotation.address.city": "Leiden"}
	f, err := Compile(q, testTable, testSchema)
	require.NoError(t, err)

	same := annotated(map[string]any{
		"name": "s1", "variableSetId": int64(7),
		"annotations": map[string]any{"age": int64(50), "address": map[string]any{"city": "Leiden"}},
	})
	split := annotated(
		map[string]any{"name": "s1", "variableSetId": int64(7), "annotations": map[string]any{"age": int64(50)}},
		map[string]any{"name": "s2", "variableSetId": int64(7), "annotations": map[string]any{"address": map[string]any{"city": "Leiden"}}},
	)
	assert.True(t, f.Match(same))
	assert.False(t, f.Match(split), "predicates must hold inside one annotation set")

	exact, err := CompileExact(q, testTable, testSchema)
	require.NoError(t, err)
	assert.Equal(t, docstore.ElemMatch{Path: "annotationSets", Filter: docstore.And{
		docstore.Eq("variableSetId", 7),
		docstore.Eq("annotations.address.city", "Leiden"),
		docstore.Gt("annotations.age", 40),
	}}, exact)
}

func TestAnnotationTypingWithSchema(t *testing.T) {
	ok := []Query{
		{"annotation.weight": "<80.5"},
		{"annotation.smoker": "true"},
		{"annotation.stage": "early"},
		{"annotation.address.zip": ">=2300"},
		{"annotation.notes": "~need"},
		{"annotationSetName": "s1"},
	}
	for _, q := range ok {
		_, err := Compile(q, testTable, testSchema)
		assert.NoError(t, err, "%v", q)
	}
	bad := []Query{
		{"annotation.unknown": "1"},
		{"annotation.age": "old"},
		{"annotation.stage": "MIDDLE"},
		{"annotation.address": "x"},
		{"annotation.age.years": "1"},
		{"annotation.address.country": "NL"},
		{"annotation.smoker": ">true"},
		{"variableSetId": "8"},
	}
	for _, q := range bad {
		_, err := Compile(q, testTable, testSchema)
		assert.ErrorIs(t, err, domain.ErrInvalidQueryValue, "%v", q)
	}
}

func TestNonPositiveVariableSetDegradesToUntyped(t *testing.T) {
	q := Query{"variableSetId": "0", "annotation.unknown": "12"}
	f, err := CompileExact(q, testTable, testSchema)
	require.NoError(t, err)
	assert.Equal(t, docstore.ElemMatch{Path: "annotationSets", Filter: docstore.Eq("annotations.unknown", 12)}, f)

	untyped, err := CompileExact(Query{"annotation.flag": "true", "annotation.label": "x"}, testTable, nil)
	require.NoError(t, err)
	assert.Equal(t, docstore.ElemMatch{Path: "annotationSets", Filter: docstore.And{
		docstore.Eq("annotations.flag", true),
		docstore.Eq("annotations.label", "x"),
	}}, untyped)
}

func TestStrategyTableCoversEveryStrategy(t *testing.T) {
	for _, p := range CommonParams() {
		_, ok := strategies[p.Strategy]
		assert.True(t, ok, "strategy %s of %s", p.Strategy, p.Key)
	}
}
