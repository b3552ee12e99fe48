package docstore

import (
	"sort"
	"strings"
)

// Projection selects the fields returned by reads. Include and Exclude are
// mutually exclusive; _id is kept unless excluded.
type Projection struct {
	Include []string
	Exclude []string
}

// Empty reports whether the projection returns whole documents.
func (p Projection) Empty() bool { return len(p.Include) == 0 && len(p.Exclude) == 0 }

// SortField orders results by Path.
type SortField struct {
	Path string
	Desc bool
}

// FindOptions shape a Find call.
type FindOptions struct {
	Projection Projection
	Sort       []SortField
	Skip       int
	Limit      int
}

// Stage is one step of an aggregation pipeline.
type Stage interface{ stage() }

// Pipeline is an ordered list of stages.
type Pipeline []Stage

// Match keeps documents satisfying Filter.
type Match struct{ Filter Filter }

// Unwind emits one document per element of the array at Path.
type Unwind struct{ Path string }

// Project reshapes documents.
type Project struct{ Projection Projection }

// Group buckets documents by the By paths. Each output document carries the
// bucket key under _id, the bucket size under "count" and, when Collect is
// set, the collected values under As.
type Group struct {
	By      []string
	Collect string
	As      string
}

// Sort orders documents.
type Sort struct{ Fields []SortField }

// Skip drops the first N documents.
type Skip struct{ N int }

// Limit keeps the first N documents.
type Limit struct{ N int }

func (Match) stage()   {}
func (Unwind) stage()  {}
func (Project) stage() {}
func (Group) stage()   {}
func (Sort) stage()    {}
func (Skip) stage()    {}
func (Limit) stage()   {}

// GroupKey is the field name a grouped path takes inside the _id document.
func GroupKey(path string) string { return strings.ReplaceAll(path, ".", "_") }

// CountField holds the bucket size in Group output.
const CountField = "count"

// ApplyFind filters, sorts, pages and projects docs in memory. It is shared by
// the in-process backends.
func ApplyFind(docs []Document, filter Filter, opts FindOptions) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if filter == nil || filter.Match(d) {
			out = append(out, d)
		}
	}
	if len(opts.Sort) > 0 {
		SortDocuments(out, opts.Sort)
	}
	out = page(out, opts.Skip, opts.Limit)
	if !opts.Projection.Empty() {
		for i, d := range out {
			out[i] = ProjectDocument(d, opts.Projection)
		}
	}
	return out
}

func page(docs []Document, skip, limit int) []Document {
	if skip > 0 {
		if skip >= len(docs) {
			return nil
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

// SortDocuments sorts docs in place, stably.
func SortDocuments(docs []Document, fields []SortField) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a, _ := docs[i].Get(f.Path)
			b, _ := docs[j].Get(f.Path)
			c := sortCompare(a, b)
			if c == 0 {
				continue
			}
			if f.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// ProjectDocument returns a projected copy of doc.
func ProjectDocument(doc Document, p Projection) Document {
	if len(p.Include) > 0 {
		out := Document{}
		if id, ok := doc[IDField]; ok && !contains(p.Exclude, IDField) {
			out[IDField] = cloneValue(id)
		}
		for _, path := range p.Include {
			copyPath(doc, out, strings.Split(path, "."))
		}
		return out
	}
	out := doc.Clone()
	for _, path := range p.Exclude {
		UnsetPath(out, path)
	}
	return out
}

func copyPath(src, dst map[string]any, parts []string) {
	v, ok := src[parts[0]]
	if !ok {
		return
	}
	if len(parts) == 1 {
		dst[parts[0]] = cloneValue(v)
		return
	}
	child, ok := v.(map[string]any)
	if !ok {
		// arrays and scalars are copied whole
		dst[parts[0]] = cloneValue(v)
		return
	}
	next, ok := dst[parts[0]].(map[string]any)
	if !ok {
		next = map[string]any{}
		dst[parts[0]] = next
	}
	copyPath(child, next, parts[1:])
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// RunPipeline evaluates a pipeline over docs in memory.
func RunPipeline(docs []Document, p Pipeline) []Document {
	cur := make([]Document, len(docs))
	for i, d := range docs {
		cur[i] = d.Clone()
	}
	for _, st := range p {
		switch s := st.(type) {
		case Match:
			cur = ApplyFind(cur, s.Filter, FindOptions{})
		case Unwind:
			cur = unwind(cur, s.Path)
		case Project:
			for i, d := range cur {
				cur[i] = ProjectDocument(d, s.Projection)
			}
		case Group:
			cur = group(cur, s)
		case Sort:
			SortDocuments(cur, s.Fields)
		case Skip:
			cur = page(cur, s.N, 0)
		case Limit:
			cur = page(cur, 0, s.N)
		}
	}
	return cur
}

func unwind(docs []Document, path string) []Document {
	var out []Document
	for _, d := range docs {
		arr, ok := arrayAt(d, path)
		if !ok {
			continue
		}
		for _, el := range arr {
			cp := d.Clone()
			_ = SetPath(cp, path, cloneValue(el))
			out = append(out, cp)
		}
	}
	return out
}

func group(docs []Document, g Group) []Document {
	type bucket struct {
		key       map[string]any
		count     int64
		collected []any
	}
	var order []string
	buckets := map[string]*bucket{}
	for _, d := range docs {
		key := make(map[string]any, len(g.By))
		for _, path := range g.By {
			v, _ := d.Get(path)
			key[GroupKey(path)] = cloneValue(v)
		}
		k := Key(key)
		b, ok := buckets[k]
		if !ok {
			b = &bucket{key: key}
			buckets[k] = b
			order = append(order, k)
		}
		b.count++
		if g.Collect != "" {
			if v, ok := d.Get(g.Collect); ok {
				b.collected = append(b.collected, cloneValue(v))
			}
		}
	}
	out := make([]Document, 0, len(order))
	for _, k := range order {
		b := buckets[k]
		doc := Document{IDField: b.key, CountField: b.count}
		if g.Collect != "" {
			as := g.As
			if as == "" {
				as = "items"
			}
			if b.collected == nil {
				b.collected = []any{}
			}
			doc[as] = b.collected
		}
		out = append(out, doc)
	}
	return out
}
