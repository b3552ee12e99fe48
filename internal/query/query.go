// Package query models caller-supplied entity queries and compiles them into
// document-store filters.
//
// A Query maps a field key to a value expression. Within one value a semicolon
// separates AND groups and a comma separates OR branches; every branch may
// start with a comparison operator:
//
//	name=c1,c2            name is c1 or c2
//	age=>20;<30           20 < age < 30
//	creationDate=2023     any instant in 2023
//	status=!=DELETED      status is not DELETED
package query

import (
	"maps"
	"sort"
	"strconv"
	"strings"
)

// Query is a transient, caller-owned set of field expressions. Values are
// strings, numbers, booleans or string/integer slices; a slice holds OR
// branches. Methods never modify the receiver.
type Query map[string]any

// Clone returns a shallow copy.
func (q Query) Clone() Query {
	if q == nil {
		return Query{}
	}
	return maps.Clone(q)
}

// With returns a copy of q with key set to value.
func (q Query) With(key string, value any) Query {
	out := q.Clone()
	out[key] = value
	return out
}

// Without returns a copy of q without the given keys.
func (q Query) Without(keys ...string) Query {
	out := q.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Has reports whether key is present.
func (q Query) Has(key string) bool {
	_, ok := q[key]
	return ok
}

// Keys returns the keys in sorted order.
func (q Query) Keys() []string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders q as key=value pairs joined by '&', in key order.
func (q Query) String() string {
	parts := make([]string, 0, len(q))
	for _, k := range q.Keys() {
		v, _ := text(q[k])
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, "&")
}

// Parse builds a Query from key=value pairs.
func Parse(pairs []string) (Query, error) {
	q := Query{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, invalid(p, p, "expected key=value")
		}
		q[k] = v
	}
	return q, nil
}

// text renders a scalar or list value as an expression string; lists are
// joined as OR branches.
func text(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case []string:
		return strings.Join(t, ","), true
	case []int64:
		parts := make([]string, len(t))
		for i, n := range t {
			parts[i] = strconv.FormatInt(n, 10)
		}
		return strings.Join(parts, ","), true
	case []int:
		parts := make([]string, len(t))
		for i, n := range t {
			parts[i] = strconv.Itoa(n)
		}
		return strings.Join(parts, ","), true
	}
	return "", false
}

// VariableSetOf returns the variable set q pins, when its variableSetId is a
// single positive id. Only then can annotation predicates be typed.
func VariableSetOf(q Query) (int64, bool) {
	s, ok := text(q[KeyVariableSetID])
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
