package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/pkg/domain"
)

// Kind is the expected value type of a param.
type Kind string

// Value kinds. List kinds address array fields and match when any element
// satisfies the predicate.
const (
	Text        Kind = "text"
	Integer     Kind = "integer"
	Decimal     Kind = "decimal"
	Boolean     Kind = "boolean"
	Date        Kind = "date"
	Enum        Kind = "enum"
	TextList    Kind = "text-list"
	IntegerList Kind = "integer-list"

	// auto infers the type of each operand; used for untyped annotations.
	auto Kind = "auto"
)

// Strategy selects how a param compiles.
type Strategy string

// Compiler strategies.
const (
	Direct          Strategy = "DIRECT"
	IDAlias         Strategy = "ID_ALIAS"
	AttributeMap    Strategy = "ATTRIBUTE_MAP"
	Annotation      Strategy = "ANNOTATION"
	AnnotationSetID Strategy = "ANNOTATION_SET_ID"
	VariableSetID   Strategy = "VARIABLE_SET_ID"
)

// Document paths shared by every entity kind.
const (
	PathID             = docstore.IDField
	PathStudy          = "_studyId"
	PathName           = "name"
	PathCreationDate   = "creationDate"
	PathRelease        = "release"
	PathAttributes     = "attributes"
	PathAcls           = "acls"
	PathAnnotationSets = "annotationSets"

	// Paths inside one annotation-set element.
	ElemVariableSetID = "variableSetId"
	ElemName          = "name"
	ElemAnnotations   = "annotations"
)

// Query keys shared by every entity kind.
const (
	KeyID                = "id"
	KeyStudyID           = "studyId"
	KeyName              = "name"
	KeyCreationDate      = "creationDate"
	KeyRelease           = "release"
	KeyStatus            = "status"
	KeyStatusName        = "status.name"
	KeyStatusDate        = "status.date"
	KeyAttributes        = "attributes"
	KeyNumericAttributes = "nattributes"
	KeyBooleanAttributes = "battributes"
	KeyAclMembers        = "acl.members"
	KeyAclPermissions    = "acl.permissions"
	KeyVariableSetID     = "variableSetId"
	KeyAnnotationSetName = "annotationSetName"
	KeyAnnotation        = "annotation"
)

// Param describes one accepted query key.
type Param struct {
	Key      string
	Path     string
	Kind     Kind
	Strategy Strategy
	Enum     []string
}

// Binding is a param resolved for a concrete caller key. Sub holds the part of
// a dotted key after the matched param key.
type Binding struct {
	Param
	Input string
	Sub   string
}

// ParamTable resolves query keys for one entity kind.
type ParamTable struct {
	params map[string]Param
}

// NewParamTable indexes params by key. Later params replace earlier ones with
// the same key.
func NewParamTable(params ...Param) *ParamTable {
	t := &ParamTable{params: make(map[string]Param, len(params))}
	for _, p := range params {
		if p.Strategy == "" {
			p.Strategy = Direct
		}
		t.params[p.Key] = p
	}
	return t
}

// With returns a table extended with params.
func (t *ParamTable) With(params ...Param) *ParamTable {
	all := make([]Param, 0, len(t.params)+len(params))
	for _, p := range t.params {
		all = append(all, p)
	}
	return NewParamTable(append(all, params...)...)
}

// Keys lists the accepted keys in sorted order.
func (t *ParamTable) Keys() []string {
	keys := make([]string, 0, len(t.params))
	for k := range t.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the param registered under key exactly.
func (t *ParamTable) Lookup(key string) (Param, bool) {
	p, ok := t.params[key]
	return p, ok
}

// Resolve matches key exactly first and then by its root segment, keeping the
// remainder for storage addressing. Aliases only match exactly.
func (t *ParamTable) Resolve(key string) (Binding, error) {
	if p, ok := t.params[key]; ok {
		return Binding{Param: p, Input: key}, nil
	}
	root, sub, dotted := strings.Cut(key, ".")
	if dotted && sub != "" {
		if p, ok := t.params[root]; ok && p.Strategy != IDAlias {
			return Binding{Param: p, Input: key, Sub: sub}, nil
		}
	}
	return Binding{}, domain.UnknownParam(key)
}

// StoragePath returns the document path the binding addresses, or "" when
// the strategy addresses annotation-set elements.
func (b Binding) StoragePath() (string, error) {
	switch b.Strategy {
	case IDAlias:
		return b.Path, nil
	case AttributeMap:
		if b.Sub == "" {
			return "", invalid(b.Input, "", fmt.Sprintf("%s needs a sub-key such as %s.<name>", b.Key, b.Key))
		}
		return b.Path + "." + b.Sub, nil
	case Annotation, AnnotationSetID, VariableSetID:
		return "", nil
	default:
		if b.Sub == "" {
			return b.Path, nil
		}
		return b.Path + "." + b.Sub, nil
	}
}

// CommonParams returns the params every entity kind accepts.
func CommonParams() []Param {
	statuses := []string{string(domain.StatusActive), string(domain.StatusDeleted), string(domain.StatusRemoved)}
	return []Param{
		{Key: KeyID, Path: PathID, Kind: Integer, Strategy: IDAlias},
		{Key: KeyStudyID, Path: PathStudy, Kind: Integer, Strategy: IDAlias},
		{Key: KeyName, Path: PathName, Kind: Text},
		{Key: KeyCreationDate, Path: PathCreationDate, Kind: Date},
		{Key: KeyRelease, Path: PathRelease, Kind: Integer},
		{Key: KeyStatus, Path: "status.name", Kind: Enum, Enum: statuses, Strategy: IDAlias},
		{Key: KeyStatusName, Path: "status.name", Kind: Enum, Enum: statuses},
		{Key: KeyStatusDate, Path: "status.date", Kind: Date},
		{Key: KeyAttributes, Path: PathAttributes, Kind: Text, Strategy: AttributeMap},
		{Key: KeyNumericAttributes, Path: PathAttributes, Kind: Decimal, Strategy: AttributeMap},
		{Key: KeyBooleanAttributes, Path: PathAttributes, Kind: Boolean, Strategy: AttributeMap},
		{Key: KeyAclMembers, Path: PathAcls + ".members", Kind: TextList},
		{Key: KeyAclPermissions, Path: PathAcls + ".permissions", Kind: TextList},
		{Key: KeyVariableSetID, Path: ElemVariableSetID, Kind: Integer, Strategy: VariableSetID},
		{Key: KeyAnnotationSetName, Path: ElemName, Kind: Text, Strategy: AnnotationSetID},
		{Key: KeyAnnotation, Path: ElemAnnotations, Kind: auto, Strategy: Annotation},
	}
}
