package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/internal/lifecycle"
	"github.com/bart-jansen/opencga/pkg/domain"
)

// strategyFunc compiles one resolved key into the compilation state.
type strategyFunc func(c *compilation, b Binding, v any) error

var strategies = map[Strategy]strategyFunc{
	Direct:          compileField,
	IDAlias:         compileField,
	AttributeMap:    compileField,
	VariableSetID:   compileVariableSetID,
	AnnotationSetID: compileAnnotationSetName,
	Annotation:      compileAnnotation,
}

type compilation struct {
	schema   map[string]domain.Variable
	schemaID int64
	untyped  bool
	main     []docstore.Filter
	elem     []docstore.Filter
}

// WithDefaultStatus returns a copy of q that hides DELETED and REMOVED
// entities unless q already constrains the status.
func WithDefaultStatus(q Query) Query {
	if q.Has(KeyStatus) || q.Has(KeyStatusName) {
		return q.Clone()
	}
	return q.With(KeyStatusName, lifecycle.NotDeletedExpr)
}

// Compile translates q into a store filter, applying default visibility.
// schema types annotation predicates; nil leaves them untyped. q is not
// modified.
func Compile(q Query, table *ParamTable, schema *domain.VariableSet) (docstore.Filter, error) {
	return CompileExact(WithDefaultStatus(q), table, schema)
}

// CompileExact translates q without default visibility. An empty query
// compiles to docstore.All.
func CompileExact(q Query, table *ParamTable, schema *domain.VariableSet) (docstore.Filter, error) {
	type item struct {
		b Binding
		v any
	}
	items := make([]item, 0, len(q))
	for _, key := range q.Keys() {
		b, err := table.Resolve(key)
		if err != nil {
			return nil, err
		}
		items = append(items, item{b: b, v: q[key]})
	}
	// The variable set decides how annotation keys are typed.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].b.Strategy == VariableSetID && items[j].b.Strategy != VariableSetID
	})

	c := &compilation{}
	if schema != nil {
		c.schema = schema.Schema()
		c.schemaID = schema.ID
	}
	for _, it := range items {
		fn, ok := strategies[it.b.Strategy]
		if !ok {
			return nil, invalid(it.b.Input, "", fmt.Sprintf("no compiler for strategy %s", it.b.Strategy))
		}
		if err := fn(c, it.b, it.v); err != nil {
			return nil, err
		}
	}
	if len(c.elem) > 0 {
		c.main = append(c.main, docstore.ElemMatch{Path: PathAnnotationSets, Filter: docstore.AllOf(c.elem...)})
	}
	return docstore.AllOf(c.main...), nil
}

func compileField(c *compilation, b Binding, v any) error {
	path, err := b.StoragePath()
	if err != nil {
		return err
	}
	f, err := compileValue(b.Input, path, b.Kind, b.Enum, v)
	if err != nil {
		return err
	}
	c.main = append(c.main, f)
	return nil
}

func compileVariableSetID(c *compilation, b Binding, v any) error {
	if b.Sub != "" {
		return domain.UnknownParam(b.Input)
	}
	if s, ok := text(v); ok {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			if id <= 0 {
				c.untyped = true
				return nil
			}
			if c.schema != nil && id != c.schemaID {
				return invalid(b.Input, s, fmt.Sprintf("supplied schema is variable set %d", c.schemaID))
			}
		}
	}
	f, err := compileValue(b.Input, b.Path, Integer, nil, v)
	if err != nil {
		return err
	}
	c.elem = append(c.elem, f)
	return nil
}

func compileAnnotationSetName(c *compilation, b Binding, v any) error {
	if b.Sub != "" {
		return domain.UnknownParam(b.Input)
	}
	f, err := compileValue(b.Input, b.Path, Text, nil, v)
	if err != nil {
		return err
	}
	c.elem = append(c.elem, f)
	return nil
}

func compileAnnotation(c *compilation, b Binding, v any) error {
	if b.Sub == "" {
		raw, _ := text(v)
		return invalid(b.Input, raw, "expected annotation.<variable>[.<field>]")
	}
	kind, enum, err := c.annotationKind(b.Input, b.Sub)
	if err != nil {
		return err
	}
	f, err := compileValue(b.Input, b.Path+"."+b.Sub, kind, enum, v)
	if err != nil {
		return err
	}
	c.elem = append(c.elem, f)
	return nil
}

// annotationKind types an annotation route against the schema. Without a
// schema every operand is typed by inspection.
func (c *compilation) annotationKind(key, route string) (Kind, []string, error) {
	if c.schema == nil || c.untyped {
		return auto, nil, nil
	}
	segs := strings.Split(route, ".")
	variable, ok := c.schema[segs[0]]
	if !ok {
		return "", nil, invalid(key, route, fmt.Sprintf("variable %s not in variable set %d", segs[0], c.schemaID))
	}
	for _, seg := range segs[1:] {
		if variable.Type != domain.VariableObject {
			return "", nil, invalid(key, route, fmt.Sprintf("variable %s is %s, not OBJECT", variable.ID, variable.Type))
		}
		child, ok := variable.Child(seg)
		if !ok {
			return "", nil, invalid(key, route, fmt.Sprintf("variable %s has no field %s", variable.ID, seg))
		}
		variable = child
	}
	switch variable.Type {
	case domain.VariableBoolean:
		return Boolean, nil, nil
	case domain.VariableCategorical:
		return Enum, variable.AllowedValues, nil
	case domain.VariableText:
		return Text, nil, nil
	case domain.VariableInteger:
		return Integer, nil, nil
	case domain.VariableDouble:
		return Decimal, nil, nil
	case domain.VariableObject:
		return "", nil, invalid(key, route, fmt.Sprintf("object variable %s needs a field route", variable.ID))
	}
	return "", nil, invalid(key, route, fmt.Sprintf("variable %s has unknown type %s", variable.ID, variable.Type))
}

// compileValue builds the predicate for one key: AND across groups, OR across
// branches. A group of plain equalities becomes an In; an AND of single
// inequalities on one path becomes a Nin.
func compileValue(key, path string, kind Kind, enum []string, v any) (docstore.Filter, error) {
	groups, err := splitGroups(key, v)
	if err != nil {
		return nil, err
	}
	ands := make([]docstore.Filter, 0, len(groups))
	for _, g := range groups {
		ors := make([]docstore.Filter, 0, len(g))
		eqs := make([]any, 0, len(g))
		for _, raw := range g {
			br, err := parseBranch(key, raw)
			if err != nil {
				return nil, err
			}
			if kind == Date {
				f, err := dateBranch(key, path, br)
				if err != nil {
					return nil, err
				}
				ors = append(ors, f)
				continue
			}
			val, err := typed(key, kind, enum, br)
			if err != nil {
				return nil, err
			}
			if br.op == opEq {
				eqs = append(eqs, val)
			}
			ors = append(ors, comparison(path, br.op, val))
		}
		switch {
		case len(ors) == 1:
			ands = append(ands, ors[0])
		case len(eqs) == len(ors):
			ands = append(ands, docstore.AnyOf(path, eqs...))
		default:
			ands = append(ands, docstore.Or(ors))
		}
	}
	if nin, ok := collapseNe(path, ands); ok {
		return nin, nil
	}
	return docstore.AllOf(ands...), nil
}

func collapseNe(path string, ands []docstore.Filter) (docstore.Filter, bool) {
	if len(ands) < 2 {
		return nil, false
	}
	vals := make([]any, 0, len(ands))
	for _, f := range ands {
		cmp, ok := f.(docstore.Comparison)
		if !ok || cmp.Op != docstore.OpNe || cmp.Path != path {
			return nil, false
		}
		vals = append(vals, cmp.Value)
	}
	return docstore.NoneOf(path, vals...), true
}
