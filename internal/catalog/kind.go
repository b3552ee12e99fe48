// Package catalog implements the entity adaptors: create, read, update, delete
// and ACL operations for one entity kind, composed from the query compiler, the
// lifecycle guard, the id allocator and the ACL engine over a document store.
package catalog

import (
	"github.com/bart-jansen/opencga/internal/query"
	"github.com/bart-jansen/opencga/pkg/domain"
)

// FieldType declares how an updatable field is validated.
type FieldType string

// Updatable field types.
const (
	FieldText    FieldType = "text"
	FieldEnum    FieldType = "enum"
	FieldInteger FieldType = "integer"
	FieldBoolean FieldType = "boolean"
	// FieldID is a single reference whose target must exist.
	FieldID FieldType = "id"
	// FieldIDList is a list of references whose targets must exist.
	FieldIDList FieldType = "id-list"
	FieldMap    FieldType = "map"
	// FieldObject accepts any JSON-compatible value.
	FieldObject FieldType = "object"
)

// Field whitelists one key of an update patch.
type Field struct {
	Key  string
	Path string
	Type FieldType
	Enum []string
	// Ref is the kind referenced by FieldID and FieldIDList values.
	Ref domain.EntityKind
}

// Reference lists ids of another kind an entity points at.
type Reference struct {
	Kind domain.EntityKind
	IDs  []int64
}

// Kind describes one entity kind to the generic adaptor.
type Kind[T any] struct {
	Name        domain.EntityKind
	Params      *query.ParamTable
	Permissions []string
	Fields      []Field
	// Base exposes the shared fields of an entity value.
	Base func(*T) *domain.Base
	// References returns the ids to verify before an entity is created.
	References func(*T) []Reference
	// Validate checks kind-specific fields at creation.
	Validate func(*T) error
}

// Collection is the document collection of the kind.
func (k Kind[T]) Collection() string { return string(k.Name) }

func (k Kind[T]) field(key string) (Field, bool) {
	for _, f := range k.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}
