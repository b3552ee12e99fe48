package mongo

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/pkg/domain"
)

// matchNothing is a query no document satisfies.
var matchNothing = bson.D{{Key: "$nor", Value: bson.A{bson.D{}}}}

var comparisonOps = map[docstore.Operator]string{
	docstore.OpEq:  "$eq",
	docstore.OpNe:  "$ne",
	docstore.OpGt:  "$gt",
	docstore.OpGte: "$gte",
	docstore.OpLt:  "$lt",
	docstore.OpLte: "$lte",
}

// translateFilter renders f as a MongoDB query document.
func translateFilter(f docstore.Filter) (bson.D, error) {
	return translatePrefixed(f, "")
}

// translatePrefixed renders f with prefix prepended to every top-level path.
// Paths inside $elemMatch stay relative to the element.
func translatePrefixed(f docstore.Filter, prefix string) (bson.D, error) {
	switch f := f.(type) {
	case nil, docstore.All:
		return bson.D{}, nil
	case docstore.And:
		if len(f) == 0 {
			return bson.D{}, nil
		}
		parts, err := translateList(f, prefix)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$and", Value: parts}}, nil
	case docstore.Or:
		if len(f) == 0 {
			return matchNothing, nil
		}
		parts, err := translateList(f, prefix)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$or", Value: parts}}, nil
	case docstore.Not:
		inner, err := translatePrefixed(f.Filter, prefix)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$nor", Value: bson.A{inner}}}, nil
	case docstore.Comparison:
		op, ok := comparisonOps[f.Op]
		if !ok {
			return nil, fmt.Errorf("unsupported operator %q", f.Op)
		}
		return field(prefix+f.Path, op, f.Value), nil
	case docstore.In:
		return field(prefix+f.Path, "$in", bson.A(nonNil(f.Values))), nil
	case docstore.Nin:
		return field(prefix+f.Path, "$nin", bson.A(nonNil(f.Values))), nil
	case docstore.Exists:
		return field(prefix+f.Path, "$exists", f.Present), nil
	case docstore.Regex:
		return field(prefix+f.Path, "$regex", f.Pattern), nil
	case docstore.Size:
		return field(prefix+f.Path, "$size", int64(f.N)), nil
	case docstore.ElemMatch:
		inner, err := translatePrefixed(f.Filter, "")
		if err != nil {
			return nil, err
		}
		return field(prefix+f.Path, "$elemMatch", inner), nil
	default:
		return nil, fmt.Errorf("unsupported filter %T", f)
	}
}

func translateList(fs []docstore.Filter, prefix string) (bson.A, error) {
	out := make(bson.A, 0, len(fs))
	for _, f := range fs {
		d, err := translatePrefixed(f, prefix)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func field(path, op string, v any) bson.D {
	return bson.D{{Key: path, Value: bson.D{{Key: op, Value: v}}}}
}

func nonNil(vals []any) []any {
	if vals == nil {
		return []any{}
	}
	return vals
}

// update is one MongoDB update document plus the array filters it needs.
type update struct {
	ops          map[string]bson.D
	order        []string
	paths        []string
	arrayFilters []any
}

func (u *update) add(op, path string, v any) {
	if u.ops == nil {
		u.ops = map[string]bson.D{}
	}
	if _, ok := u.ops[op]; !ok {
		u.order = append(u.order, op)
	}
	u.ops[op] = append(u.ops[op], bson.E{Key: path, Value: v})
	u.paths = append(u.paths, path)
}

func (u *update) conflicts(paths []string) bool {
	for _, p := range paths {
		for _, q := range u.paths {
			if pathsOverlap(p, q) {
				return true
			}
		}
	}
	return false
}

// Document renders the update operators in insertion order.
func (u *update) Document() bson.D {
	out := make(bson.D, 0, len(u.order))
	for _, op := range u.order {
		out = append(out, bson.E{Key: op, Value: u.ops[op]})
	}
	return out
}

func pathsOverlap(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+".") || strings.HasPrefix(b, a+".")
}

// translateUpdate turns mutations into one or more update documents. MongoDB
// rejects a single update touching overlapping paths, so a mutation that
// overlaps an earlier one starts a new update executed afterwards.
func translateUpdate(muts []docstore.Mutation) ([]*update, error) {
	var (
		out     []*update
		counter int
	)
	cur := &update{}
	for _, m := range muts {
		next := &update{}
		if err := translateMutation(next, m, "", &counter); err != nil {
			return nil, err
		}
		if cur.conflicts(next.paths) {
			out = append(out, cur)
			cur = &update{}
		}
		for _, op := range next.order {
			for _, e := range next.ops[op] {
				cur.add(op, e.Key, e.Value)
			}
		}
		cur.arrayFilters = append(cur.arrayFilters, next.arrayFilters...)
	}
	if len(cur.order) > 0 {
		out = append(out, cur)
	}
	return out, nil
}

func translateMutation(u *update, m docstore.Mutation, prefix string, counter *int) error {
	switch m := m.(type) {
	case docstore.Set:
		if prefix == "" && m.Path == docstore.IDField {
			return nil
		}
		u.add("$set", prefix+m.Path, m.Value)
	case docstore.Unset:
		u.add("$unset", prefix+m.Path, "")
	case docstore.Push:
		u.add("$push", prefix+m.Path, bson.D{{Key: "$each", Value: bson.A(nonNil(m.Values))}})
	case docstore.AddToSet:
		u.add("$addToSet", prefix+m.Path, bson.D{{Key: "$each", Value: bson.A(nonNil(m.Values))}})
	case docstore.PullValues:
		u.add("$pull", prefix+m.Path, bson.D{{Key: "$in", Value: bson.A(nonNil(m.Values))}})
	case docstore.PullWhere:
		cond, err := translateFilter(m.Filter)
		if err != nil {
			return err
		}
		u.add("$pull", prefix+m.Path, cond)
	case docstore.ElemUpdate:
		if prefix != "" {
			return fmt.Errorf("nested element update on %s is not supported", m.Path)
		}
		elemPrefix := m.Path + ".$[]."
		if m.Where != nil {
			if _, all := m.Where.(docstore.All); !all {
				ident := "e" + strconv.Itoa(*counter)
				*counter++
				cond, err := translatePrefixed(m.Where, ident+".")
				if err != nil {
					return err
				}
				u.arrayFilters = append(u.arrayFilters, cond)
				elemPrefix = m.Path + ".$[" + ident + "]."
			}
		}
		for _, inner := range m.Mutations {
			if err := translateMutation(u, inner, elemPrefix, counter); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported mutation %T", m)
	}
	return nil
}

func translateSort(fields []docstore.SortField) bson.D {
	out := make(bson.D, 0, len(fields))
	for _, f := range fields {
		dir := 1
		if f.Desc {
			dir = -1
		}
		out = append(out, bson.E{Key: f.Path, Value: dir})
	}
	return out
}

func translateProjection(p docstore.Projection) bson.D {
	if p.Empty() {
		return nil
	}
	out := bson.D{}
	if len(p.Include) > 0 {
		for _, path := range p.Include {
			out = append(out, bson.E{Key: path, Value: 1})
		}
		return out
	}
	for _, path := range p.Exclude {
		out = append(out, bson.E{Key: path, Value: 0})
	}
	return out
}

// translatePipeline renders an aggregation pipeline.
func translatePipeline(p docstore.Pipeline) ([]bson.D, error) {
	out := make([]bson.D, 0, len(p))
	for _, st := range p {
		switch s := st.(type) {
		case docstore.Match:
			cond, err := translateFilter(s.Filter)
			if err != nil {
				return nil, err
			}
			out = append(out, bson.D{{Key: "$match", Value: cond}})
		case docstore.Unwind:
			out = append(out, bson.D{{Key: "$unwind", Value: "$" + s.Path}})
		case docstore.Project:
			if proj := translateProjection(s.Projection); proj != nil {
				out = append(out, bson.D{{Key: "$project", Value: proj}})
			}
		case docstore.Group:
			key := bson.D{}
			for _, path := range s.By {
				key = append(key, bson.E{Key: docstore.GroupKey(path), Value: "$" + path})
			}
			g := bson.D{
				{Key: docstore.IDField, Value: key},
				{Key: docstore.CountField, Value: bson.D{{Key: "$sum", Value: 1}}},
			}
			if s.Collect != "" {
				as := s.As
				if as == "" {
					as = "items"
				}
				g = append(g, bson.E{Key: as, Value: bson.D{{Key: "$push", Value: "$" + s.Collect}}})
			}
			out = append(out, bson.D{{Key: "$group", Value: g}})
		case docstore.Sort:
			out = append(out, bson.D{{Key: "$sort", Value: translateSort(s.Fields)}})
		case docstore.Skip:
			out = append(out, bson.D{{Key: "$skip", Value: int64(s.N)}})
		case docstore.Limit:
			out = append(out, bson.D{{Key: "$limit", Value: int64(s.N)}})
		default:
			return nil, fmt.Errorf("unsupported stage %T", st)
		}
	}
	return out, nil
}

// fromBSON converts decoded driver values into plain document values.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = fromBSON(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = fromBSON(val)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = fromBSON(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = fromBSON(val)
		}
		return out
	case int32:
		return int64(t)
	case bson.DateTime:
		return t.Time().UTC().Format(domain.TimeLayout)
	case bson.ObjectID:
		return t.Hex()
	default:
		return docstore.Normalize(v)
	}
}

func toDocument(m bson.M) docstore.Document {
	out, _ := fromBSON(m).(map[string]any)
	return docstore.Document(out)
}
