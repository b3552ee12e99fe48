package catalog

import (
	"context"
	"slices"

	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/internal/lifecycle"
	"github.com/bart-jansen/opencga/internal/query"
	"github.com/bart-jansen/opencga/pkg/domain"
)

// StoreExistence checks references against the visible documents of the
// referenced kind's collection.
type StoreExistence struct {
	Store docstore.Store
}

// Exists implements domain.ExistenceChecker.
func (s StoreExistence) Exists(ctx context.Context, studyID int64, kind domain.EntityKind, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	want := make([]any, len(ids))
	for i, id := range ids {
		want[i] = id
	}
	found, err := s.Store.Collection(string(kind)).Distinct(ctx, query.PathID, docstore.AllOf(
		docstore.Eq(query.PathStudy, studyID),
		docstore.AnyOf(query.PathID, want...),
		lifecycle.VisibleFilter(),
	))
	if err != nil {
		return domain.StoreError{Op: string(kind) + ".exists", Err: err}
	}
	have := make([]int64, 0, len(found))
	for _, v := range found {
		if n, ok := docstore.Normalize(v).(int64); ok {
			have = append(have, n)
		}
	}
	for _, id := range ids {
		if !slices.Contains(have, id) {
			return domain.NotFoundError{Entity: kind, ID: id}
		}
	}
	return nil
}
