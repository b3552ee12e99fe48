package docstore

import (
	"regexp"
	"sync"
)

// Filter is a boolean predicate over documents. Paths are dotted and follow
// document-store array semantics: a path crossing an array matches when any
// element matches.
type Filter interface {
	Match(doc map[string]any) bool
}

// Operator is a scalar comparison operator.
type Operator string

// Comparison operators.
const (
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
)

// All matches every document.
type All struct{}

// And matches when every child matches. An empty And matches everything.
type And []Filter

// Or matches when any child matches. An empty Or matches nothing.
type Or []Filter

// Not negates a filter.
type Not struct{ Filter Filter }

// Comparison compares the value at Path with Value.
type Comparison struct {
	Path  string
	Op    Operator
	Value any
}

// In matches when the value at Path equals any of Values.
type In struct {
	Path   string
	Values []any
}

// Nin matches when the value at Path equals none of Values. Missing paths match.
type Nin struct {
	Path   string
	Values []any
}

// Exists matches on presence (or absence) of Path.
type Exists struct {
	Path    string
	Present bool
}

// Regex matches string values at Path against Pattern.
type Regex struct {
	Path    string
	Pattern string
}

// ElemMatch requires one element of the array at Path to satisfy Filter as a
// whole. Paths inside Filter are relative to the element.
type ElemMatch struct {
	Path   string
	Filter Filter
}

// Size matches arrays at Path holding exactly N elements.
type Size struct {
	Path string
	N    int
}

// Eq builds an equality comparison.
func Eq(path string, v any) Filter { return Comparison{Path: path, Op: OpEq, Value: Normalize(v)} }

// Ne builds an inequality comparison.
func Ne(path string, v any) Filter { return Comparison{Path: path, Op: OpNe, Value: Normalize(v)} }

// Gt builds a greater-than comparison.
func Gt(path string, v any) Filter { return Comparison{Path: path, Op: OpGt, Value: Normalize(v)} }

// Gte builds a greater-or-equal comparison.
func Gte(path string, v any) Filter { return Comparison{Path: path, Op: OpGte, Value: Normalize(v)} }

// Lt builds a less-than comparison.
func Lt(path string, v any) Filter { return Comparison{Path: path, Op: OpLt, Value: Normalize(v)} }

// Lte builds a less-or-equal comparison.
func Lte(path string, v any) Filter { return Comparison{Path: path, Op: OpLte, Value: Normalize(v)} }

// AnyOf builds an In filter.
func AnyOf(path string, vals ...any) Filter { return In{Path: path, Values: NormalizeAll(vals)} }

// NoneOf builds a Nin filter.
func NoneOf(path string, vals ...any) Filter { return Nin{Path: path, Values: NormalizeAll(vals)} }

// AllOf combines filters with AND, flattening nested Ands and dropping All.
func AllOf(filters ...Filter) Filter {
	var out And
	for _, f := range filters {
		switch t := f.(type) {
		case nil, All:
			continue
		case And:
			out = append(out, t...)
		default:
			out = append(out, f)
		}
	}
	switch len(out) {
	case 0:
		return All{}
	case 1:
		return out[0]
	}
	return out
}

// Match implements Filter.
func (All) Match(map[string]any) bool { return true }

// Match implements Filter.
func (f And) Match(doc map[string]any) bool {
	for _, c := range f {
		if !c.Match(doc) {
			return false
		}
	}
	return true
}

// Match implements Filter.
func (f Or) Match(doc map[string]any) bool {
	for _, c := range f {
		if c.Match(doc) {
			return true
		}
	}
	return false
}

// Match implements Filter.
func (f Not) Match(doc map[string]any) bool { return !f.Filter.Match(doc) }

// Match implements Filter.
func (f Comparison) Match(doc map[string]any) bool {
	vals := Lookup(doc, f.Path)
	switch f.Op {
	case OpEq:
		return containsEqual(vals, f.Value)
	case OpNe:
		return !containsEqual(vals, f.Value)
	}
	for _, v := range vals {
		if _, isArr := v.([]any); isArr {
			continue
		}
		c, ok := Order(v, f.Value)
		if !ok {
			continue
		}
		switch f.Op {
		case OpGt:
			if c > 0 {
				return true
			}
		case OpGte:
			if c >= 0 {
				return true
			}
		case OpLt:
			if c < 0 {
				return true
			}
		case OpLte:
			if c <= 0 {
				return true
			}
		}
	}
	return false
}

func containsEqual(vals []any, want any) bool {
	if want == nil && len(vals) == 0 {
		return true
	}
	for _, v := range vals {
		if Equal(v, want) {
			return true
		}
	}
	return false
}

// Match implements Filter.
func (f In) Match(doc map[string]any) bool {
	vals := Lookup(doc, f.Path)
	for _, want := range f.Values {
		if containsEqual(vals, want) {
			return true
		}
	}
	return false
}

// Match implements Filter.
func (f Nin) Match(doc map[string]any) bool {
	return !In(f).Match(doc)
}

// Match implements Filter.
func (f Exists) Match(doc map[string]any) bool {
	return (len(Lookup(doc, f.Path)) > 0) == f.Present
}

var regexCache sync.Map

func compiledRegex(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}

// Match implements Filter. Invalid patterns match nothing.
func (f Regex) Match(doc map[string]any) bool {
	re, err := compiledRegex(f.Pattern)
	if err != nil {
		return false
	}
	for _, v := range Lookup(doc, f.Path) {
		if s, ok := v.(string); ok && re.MatchString(s) {
			return true
		}
	}
	return false
}

// Match implements Filter.
func (f ElemMatch) Match(doc map[string]any) bool {
	for _, v := range Lookup(doc, f.Path) {
		arr, ok := v.([]any)
		if !ok {
			continue
		}
		for _, el := range arr {
			if m, ok := el.(map[string]any); ok && f.Filter.Match(m) {
				return true
			}
		}
	}
	return false
}

// Match implements Filter.
func (f Size) Match(doc map[string]any) bool {
	for _, v := range Lookup(doc, f.Path) {
		if arr, ok := v.([]any); ok && len(arr) == f.N {
			return true
		}
	}
	return false
}
