// Package docstore defines the store-native language the catalog compiles to:
// JSON-shaped documents, boolean filter trees, update mutations and
// aggregation pipelines, plus the Store contract backends implement.
package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Document is a JSON-shaped record. Values are normalized to nil, bool,
// int64, float64, string, []any and map[string]any.
type Document map[string]any

// IDField is the primary key path of every collection.
const IDField = "_id"

// Encode converts a JSON-tagged Go value into a normalized Document.
func Encode(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if m == nil {
		return Document{}, nil
	}
	return Document(Normalize(m).(map[string]any)), nil
}

// Decode fills out from the document using its JSON tags.
func Decode(doc Document, out any) error {
	raw, err := json.Marshal(map[string]any(doc))
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneValue(map[string]any(d)).(map[string]any))
}

// Get returns the first value at path, if any.
func (d Document) Get(path string) (any, bool) {
	vals := Lookup(d, path)
	if len(vals) == 0 {
		return nil, false
	}
	return vals[0], true
}

// Int64 returns the integral value at path.
func (d Document) Int64(path string) (int64, bool) {
	v, ok := d.Get(path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	}
	return 0, false
}

// String returns the string value at path.
func (d Document) String(path string) string {
	v, _ := d.Get(path)
	s, _ := v.(string)
	return s
}

// Normalize deep-copies v into the canonical value set.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case bool, string, int64, float64:
		return t
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case float32:
		return float64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case Document:
		return Normalize(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Normalize(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	case []int64:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	case []int:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = int64(val)
		}
		return out
	case []float64:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Normalize(val)
		}
		return out
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return fmt.Sprint(v)
	}
	return Normalize(out)
}

// NormalizeAll normalizes each element of vals.
func NormalizeAll(vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = Normalize(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	}
	return v
}

// Lookup resolves a dotted path. Arrays on the way fan out across their
// elements; an array at the leaf yields the array followed by its elements.
// An empty result means the path is missing.
func Lookup(doc map[string]any, path string) []any {
	if path == "" {
		return []any{doc}
	}
	return resolve(doc, strings.Split(path, "."), nil)
}

func resolve(v any, parts []string, out []any) []any {
	if len(parts) == 0 {
		out = append(out, v)
		if arr, ok := v.([]any); ok {
			out = append(out, arr...)
		}
		return out
	}
	switch t := v.(type) {
	case map[string]any:
		child, ok := t[parts[0]]
		if !ok {
			return out
		}
		return resolve(child, parts[1:], out)
	case Document:
		return resolve(map[string]any(t), parts, out)
	case []any:
		if idx, err := strconv.Atoi(parts[0]); err == nil {
			if idx >= 0 && idx < len(t) {
				return resolve(t[idx], parts[1:], out)
			}
			return out
		}
		for _, el := range t {
			out = resolve(el, parts, out)
		}
	}
	return out
}

// Equal compares normalized values. Numbers compare by value across int64
// and float64.
func Equal(a, b any) bool {
	if af, ok := number(a); ok {
		bf, ok := number(b)
		return ok && af == bf
	}
	switch at := a.(type) {
	case nil:
		return b == nil
	case bool:
		bt, ok := b.(bool)
		return ok && at == bt
	case string:
		bt, ok := b.(string)
		return ok && at == bt
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !Equal(at[i], bt[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for k, av := range at {
			bv, ok := bt[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Order orders two scalar values of the same class: numbers, strings or
// booleans. ok is false when the values are not comparable.
func Order(a, b any) (cmp int, ok bool) {
	if af, aok := number(a); aok {
		bf, bok := number(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	switch at := a.(type) {
	case string:
		bt, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(at, bt), true
	case bool:
		bt, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case at == bt:
			return 0, true
		case !at:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// sortRank orders values of different classes when sorting: missing/null,
// numbers, strings, documents, arrays, booleans.
func sortRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int64, float64:
		return 1
	case string:
		return 2
	case map[string]any:
		return 3
	case []any:
		return 4
	case bool:
		return 5
	}
	return 6
}

func sortCompare(a, b any) int {
	ra, rb := sortRank(a), sortRank(b)
	if ra != rb {
		return ra - rb
	}
	if c, ok := Order(a, b); ok {
		return c
	}
	return strings.Compare(Key(a), Key(b))
}

// Key renders a value as a stable string usable as a map key.
func Key(v any) string {
	raw, err := json.Marshal(canonical(v))
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

func canonical(v any) any {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys)*2)
		for _, k := range keys {
			out = append(out, k, canonical(t[k]))
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = canonical(val)
		}
		return out
	}
	return v
}

// SetPath writes value at a dotted path, creating intermediate documents.
func SetPath(doc map[string]any, path string, value any) error {
	parts := strings.Split(path, ".")
	cur := doc
	for i, p := range parts[:len(parts)-1] {
		next, ok := cur[p]
		if !ok || next == nil {
			m := map[string]any{}
			cur[p] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot set %s: %s is not a document", path, strings.Join(parts[:i+1], "."))
		}
		cur = m
	}
	cur[parts[len(parts)-1]] = value
	return nil
}

// UnsetPath removes the value at a dotted path, if present.
func UnsetPath(doc map[string]any, path string) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		m, ok := cur[p].(map[string]any)
		if !ok {
			return
		}
		cur = m
	}
	delete(cur, parts[len(parts)-1])
}

// arrayAt returns the array stored exactly at path (no fan-out).
func arrayAt(doc map[string]any, path string) ([]any, bool) {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	arr, ok := cur.([]any)
	return arr, ok
}

// UnmarshalDocuments decodes a JSON array of documents, normalizing numbers.
func UnmarshalDocuments(raw []byte) ([]Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	out := make([]Document, len(items))
	for i, item := range items {
		out[i] = Document(Normalize(item).(map[string]any))
	}
	return out, nil
}
