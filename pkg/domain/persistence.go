package domain

import "context"

// StudyDirectory resolves studies and the principals that may hold
// permissions within them.
type StudyDirectory interface {
	StudyExists(ctx context.Context, studyID int64) (bool, error)
	// ResolvePrincipals returns the validated members or a PrincipalNotFoundError
	// naming every member that does not resolve.
	ResolvePrincipals(ctx context.Context, studyID int64, members []string) ([]string, error)
}

// VariableSetProvider supplies read-only annotation schemas.
type VariableSetProvider interface {
	VariableSet(ctx context.Context, id int64) (VariableSet, error)
}

// ExistenceChecker verifies that referenced entities exist before an id-list
// field is written.
type ExistenceChecker interface {
	// Exists returns a NotFoundError for the first missing id.
	Exists(ctx context.Context, studyID int64, kind EntityKind, ids []int64) error
}
