package domain

// VariableType is the declared type of an annotation variable.
type VariableType string

// Annotation variable types.
const (
	VariableBoolean     VariableType = "BOOLEAN"
	VariableCategorical VariableType = "CATEGORICAL"
	VariableText        VariableType = "TEXT"
	VariableInteger     VariableType = "INTEGER"
	VariableDouble      VariableType = "DOUBLE"
	VariableObject      VariableType = "OBJECT"
)

// Variable describes one annotation variable. OBJECT variables nest further
// variables addressed by dotted routes.
type Variable struct {
	ID            string       `json:"id" yaml:"id"`
	Type          VariableType `json:"type" yaml:"type"`
	AllowedValues []string     `json:"allowedValues,omitempty" yaml:"allowedValues,omitempty"`
	Required      bool         `json:"required,omitempty" yaml:"required,omitempty"`
	MultiValue    bool         `json:"multiValue,omitempty" yaml:"multiValue,omitempty"`
	Variables     []Variable   `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// VariableSet is an externally owned annotation schema.
type VariableSet struct {
	ID        int64      `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Variables []Variable `json:"variables" yaml:"variables"`
}

// Schema indexes the top-level variables by id.
func (vs VariableSet) Schema() map[string]Variable {
	out := make(map[string]Variable, len(vs.Variables))
	for _, v := range vs.Variables {
		out[v.ID] = v
	}
	return out
}

// Child returns the nested variable with the given id.
func (v Variable) Child(id string) (Variable, bool) {
	for _, c := range v.Variables {
		if c.ID == id {
			return c, true
		}
	}
	return Variable{}, false
}

// AnnotationSet holds an entity's values for one variable set.
type AnnotationSet struct {
	Name          string         `json:"name"`
	VariableSetID int64          `json:"variableSetId"`
	Annotations   map[string]any `json:"annotations"`
	CreationDate  string         `json:"creationDate,omitempty"`
}
