package catalog

import (
	"context"
	"strings"

	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/internal/query"
	"github.com/bart-jansen/opencga/pkg/domain"
)

// Group is one bucket of GroupBy, keyed by the requested field names.
type Group struct {
	Key   map[string]any `json:"key"`
	Count int64          `json:"count"`
	IDs   []int64        `json:"ids"`
}

// RankEntry is one value of Rank with its number of entities.
type RankEntry struct {
	Value any   `json:"value"`
	Count int64 `json:"count"`
}

// GroupBy buckets the entities matching q by fields, largest bucket first.
func (a *Adaptor[T]) GroupBy(ctx context.Context, q query.Query, fields []string) ([]Group, error) {
	var out []Group
	err := a.run(ctx, "group_by", func(ctx context.Context) error {
		if len(fields) == 0 {
			return domain.InvalidArgumentError{Field: "fields", Value: fields, Reason: "at least one field is required"}
		}
		filter, err := a.compile(ctx, q)
		if err != nil {
			return err
		}
		paths, err := a.paths(fields)
		if err != nil {
			return err
		}
		docs, err := a.coll.Aggregate(ctx, docstore.Pipeline{
			docstore.Match{Filter: filter},
			docstore.Group{By: paths, Collect: query.PathID, As: "ids"},
			docstore.Sort{Fields: []docstore.SortField{{Path: docstore.CountField, Desc: true}}},
		})
		if err != nil {
			return a.storeErr("group_by", err)
		}
		out = make([]Group, 0, len(docs))
		for _, d := range docs {
			key, _ := d[docstore.IDField].(map[string]any)
			g := Group{Key: make(map[string]any, len(fields)), IDs: []int64{}}
			for i, f := range fields {
				g.Key[f] = key[docstore.GroupKey(paths[i])]
			}
			g.Count, _ = d.Int64(docstore.CountField)
			raw, _ := d["ids"].([]any)
			for _, v := range raw {
				if n, ok := docstore.Normalize(v).(int64); ok {
					g.IDs = append(g.IDs, n)
				}
			}
			out = append(out, g)
		}
		return nil
	})
	return out, err
}

// Rank counts entities per value of field and returns the n most frequent,
// or the n least frequent when ascending. List fields count every element.
func (a *Adaptor[T]) Rank(ctx context.Context, q query.Query, field string, n int, ascending bool) ([]RankEntry, error) {
	var out []RankEntry
	err := a.run(ctx, "rank", func(ctx context.Context) error {
		if n <= 0 {
			return domain.InvalidArgumentError{Field: "limit", Value: n, Reason: "must be positive"}
		}
		filter, err := a.compile(ctx, q)
		if err != nil {
			return err
		}
		path, err := a.path(field)
		if err != nil {
			return err
		}
		pipeline := docstore.Pipeline{docstore.Match{Filter: filter}}
		if p, ok := a.kind.Params.Lookup(field); ok && (p.Kind == query.TextList || p.Kind == query.IntegerList) {
			root, _, _ := strings.Cut(path, ".")
			pipeline = append(pipeline, docstore.Unwind{Path: root})
		}
		pipeline = append(pipeline,
			docstore.Group{By: []string{path}},
			docstore.Sort{Fields: []docstore.SortField{{Path: docstore.CountField, Desc: !ascending}}},
			docstore.Limit{N: n},
		)
		docs, err := a.coll.Aggregate(ctx, pipeline)
		if err != nil {
			return a.storeErr("rank", err)
		}
		out = make([]RankEntry, 0, len(docs))
		for _, d := range docs {
			key, _ := d[docstore.IDField].(map[string]any)
			count, _ := d.Int64(docstore.CountField)
			out = append(out, RankEntry{Value: key[docstore.GroupKey(path)], Count: count})
		}
		return nil
	})
	return out, err
}
