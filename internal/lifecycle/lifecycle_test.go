package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/pkg/domain"
)

func TestGuardDelete(t *testing.T) {
	target, err := Guard(domain.KindCohort, 1, domain.StatusActive, Delete)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeleted, target)

	for _, current := range []domain.StatusName{domain.StatusDeleted, domain.StatusRemoved} {
		_, err := Guard(domain.KindCohort, 3, current, Delete)
		require.ErrorIs(t, err, domain.ErrAlreadyDeleted)
		var ad domain.AlreadyDeletedError
		require.True(t, errors.As(err, &ad))
		assert.Equal(t, current, ad.Status)
		assert.Equal(t, int64(3), ad.ID)
	}
}

func TestGuardRejectsUnsupportedTransitions(t *testing.T) {
	for _, tr := range []Transition{Remove, Restore} {
		for _, current := range []domain.StatusName{domain.StatusActive, domain.StatusDeleted} {
			_, err := Guard(domain.KindIndividual, 1, current, tr)
			assert.ErrorIs(t, err, domain.ErrUnsupported, "%s from %s", tr, current)
		}
	}
}

func TestGuardRejectsUnknownInput(t *testing.T) {
	_, err := Guard(domain.KindCohort, 1, "ARCHIVED", Delete)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = Guard(domain.KindCohort, 1, domain.StatusActive, "purge")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestStatusPatchSetsNameAndDateTogether(t *testing.T) {
	now := time.Date(2024, 3, 5, 10, 11, 12, 0, time.FixedZone("x", 3600))
	doc := docstore.Document{"_id": int64(1), "status": map[string]any{"name": "ACTIVE", "date": "20200101000000"}}
	updated, modified, err := docstore.Apply(doc, StatusPatch(domain.StatusDeleted, now))
	require.NoError(t, err)
	assert.True(t, modified)
	assert.Equal(t, "DELETED", updated.String(StatusPath))
	assert.Equal(t, "20240305091112", updated.String(StatusDatePath))

	assert.Equal(t, domain.Status{Name: domain.StatusActive, Date: "20240305091112"}, Initial(now))
}

func TestVisibleFilter(t *testing.T) {
	f := VisibleFilter()
	assert.True(t, f.Match(map[string]any{"status": map[string]any{"name": "ACTIVE"}}))
	assert.False(t, f.Match(map[string]any{"status": map[string]any{"name": "DELETED"}}))
	assert.False(t, f.Match(map[string]any{"status": map[string]any{"name": "REMOVED"}}))
	assert.Equal(t, "!=DELETED;!=REMOVED", NotDeletedExpr)
}
