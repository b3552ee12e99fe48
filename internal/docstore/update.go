package docstore

import "fmt"

// Mutation is one update operator applied to every matched document.
type Mutation interface {
	apply(doc map[string]any) error
}

// Set writes Value at Path.
type Set struct {
	Path  string
	Value any
}

// Unset removes Path.
type Unset struct{ Path string }

// Push appends Values to the array at Path, creating it when missing.
type Push struct {
	Path   string
	Values []any
}

// AddToSet appends the Values not already present in the array at Path.
type AddToSet struct {
	Path   string
	Values []any
}

// PullValues removes array elements equal to any of Values.
type PullValues struct {
	Path   string
	Values []any
}

// PullWhere removes array elements (documents) matching Filter.
type PullWhere struct {
	Path   string
	Filter Filter
}

// ElemUpdate applies Mutations to every document element of the array at
// Path that satisfies Where. Mutation paths are relative to the element and
// may not nest another ElemUpdate.
type ElemUpdate struct {
	Path      string
	Where     Filter
	Mutations []Mutation
}

// SetValue builds a Set with a normalized value.
func SetValue(path string, v any) Mutation { return Set{Path: path, Value: Normalize(v)} }

// PushValues builds a Push with normalized values.
func PushValues(path string, vals ...any) Mutation {
	return Push{Path: path, Values: NormalizeAll(vals)}
}

// AddValues builds an AddToSet with normalized values.
func AddValues(path string, vals ...any) Mutation {
	return AddToSet{Path: path, Values: NormalizeAll(vals)}
}

// PullAll builds a PullValues with normalized values.
func PullAll(path string, vals ...any) Mutation {
	return PullValues{Path: path, Values: NormalizeAll(vals)}
}

// Apply runs the mutations against a copy of doc. modified reports whether
// the result differs from the input.
func Apply(doc Document, muts []Mutation) (updated Document, modified bool, err error) {
	updated = doc.Clone()
	for _, m := range muts {
		if err := m.apply(updated); err != nil {
			return nil, false, err
		}
	}
	return updated, !Equal(map[string]any(doc), map[string]any(updated)), nil
}

func (m Set) apply(doc map[string]any) error {
	if m.Path == IDField {
		if cur, ok := doc[IDField]; ok && !Equal(cur, Normalize(m.Value)) {
			return fmt.Errorf("cannot modify immutable field %s", IDField)
		}
	}
	return SetPath(doc, m.Path, Normalize(m.Value))
}

func (m Unset) apply(doc map[string]any) error {
	UnsetPath(doc, m.Path)
	return nil
}

func (m Push) apply(doc map[string]any) error {
	arr, err := arrayForWrite(doc, m.Path)
	if err != nil {
		return err
	}
	arr = append(arr, NormalizeAll(m.Values)...)
	return SetPath(doc, m.Path, arr)
}

func (m AddToSet) apply(doc map[string]any) error {
	arr, err := arrayForWrite(doc, m.Path)
	if err != nil {
		return err
	}
	for _, v := range NormalizeAll(m.Values) {
		if !containsEqual(arr, v) {
			arr = append(arr, v)
		}
	}
	return SetPath(doc, m.Path, arr)
}

func (m PullValues) apply(doc map[string]any) error {
	arr, ok := arrayAt(doc, m.Path)
	if !ok {
		return nil
	}
	vals := NormalizeAll(m.Values)
	kept := make([]any, 0, len(arr))
	for _, el := range arr {
		if !containsEqual(vals, el) {
			kept = append(kept, el)
		}
	}
	return SetPath(doc, m.Path, kept)
}

func (m PullWhere) apply(doc map[string]any) error {
	arr, ok := arrayAt(doc, m.Path)
	if !ok {
		return nil
	}
	kept := make([]any, 0, len(arr))
	for _, el := range arr {
		if el, ok := el.(map[string]any); ok && m.Filter.Match(el) {
			continue
		}
		kept = append(kept, el)
	}
	return SetPath(doc, m.Path, kept)
}

func (m ElemUpdate) apply(doc map[string]any) error {
	for _, inner := range m.Mutations {
		if _, nested := inner.(ElemUpdate); nested {
			return fmt.Errorf("nested element update on %s is not supported", m.Path)
		}
	}
	arr, ok := arrayAt(doc, m.Path)
	if !ok {
		return nil
	}
	for _, el := range arr {
		elem, ok := el.(map[string]any)
		if !ok || (m.Where != nil && !m.Where.Match(elem)) {
			continue
		}
		for _, inner := range m.Mutations {
			if err := inner.apply(elem); err != nil {
				return fmt.Errorf("%s: %w", m.Path, err)
			}
		}
	}
	return nil
}

func arrayForWrite(doc map[string]any, path string) ([]any, error) {
	vals := Lookup(doc, path)
	if len(vals) == 0 || vals[0] == nil {
		return []any{}, nil
	}
	arr, ok := arrayAt(doc, path)
	if !ok {
		return nil, fmt.Errorf("cannot push to %s: not an array", path)
	}
	out := make([]any, len(arr), len(arr)+1)
	copy(out, arr)
	return out, nil
}
