package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bart-jansen/opencga/pkg/domain"
)

const sample = `
studies:
  - id: 10
    name: rare-disease
    users: [alice, bob]
    groups:
      "@admins": [alice]
    entities:
      sample: [101, 102]
      family: [7]
variableSets:
  - id: 3
    name: person
    variables:
      - id: age
        type: INTEGER
      - id: address
        type: OBJECT
        variables:
          - id: city
            type: TEXT
`

func load(t *testing.T) *Directory {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	d, err := Load(path)
	require.NoError(t, err)
	return d
}

func TestStudiesAndPrincipals(t *testing.T) {
	d := load(t)
	ctx := context.Background()

	ok, err := d.StudyExists(ctx, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = d.StudyExists(ctx, 11)
	assert.False(t, ok)

	got, err := d.ResolvePrincipals(ctx, 10, []string{"alice", "@admins", "*"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "@admins", "*"}, got)

	_, err = d.ResolvePrincipals(ctx, 10, []string{"alice", "mallory", "@nobody"})
	var missing domain.PrincipalNotFoundError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"mallory", "@nobody"}, missing.Members)

	_, err = d.ResolvePrincipals(ctx, 11, []string{"alice"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVariableSetsAndEntities(t *testing.T) {
	d := load(t)
	ctx := context.Background()

	vs, err := d.VariableSet(ctx, 3)
	require.NoError(t, err)
	city, ok := vs.Schema()["address"].Child("city")
	require.True(t, ok)
	assert.Equal(t, domain.VariableText, city.Type)

	_, err = d.VariableSet(ctx, 4)
	require.ErrorIs(t, err, domain.ErrNotFound)

	assert.True(t, d.Manages(domain.KindSample))
	assert.False(t, d.Manages(domain.KindIndividual))
	require.NoError(t, d.Exists(ctx, 10, domain.KindSample, []int64{101, 102}))
	var nf domain.NotFoundError
	require.ErrorAs(t, d.Exists(ctx, 10, domain.KindSample, []int64{101, 103}), &nf)
	assert.Equal(t, int64(103), nf.ID)
}

func TestParseRejectsBadFiles(t *testing.T) {
	for name, body := range map[string]string{
		"unknown field": "studies:\n  - id: 1\n    owner: x\n",
		"duplicate":     "studies:\n  - id: 1\n  - id: 1\n",
		"bad id":        "studies:\n  - name: x\n",
		"group prefix":  "studies:\n  - id: 1\n    groups:\n      admins: [a]\n",
		"duplicate set": "variableSets:\n  - id: 1\n  - id: 1\n",
	} {
		_, err := Parse([]byte(body))
		require.Error(t, err, name)
	}
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.Error(t, err)
}

type countingProvider struct {
	calls int
	inner domain.VariableSetProvider
}

func (p *countingProvider) VariableSet(ctx context.Context, id int64) (domain.VariableSet, error) {
	p.calls++
	return p.inner.VariableSet(ctx, id)
}

func TestCachedVariableSets(t *testing.T) {
	provider := &countingProvider{inner: load(t)}
	cached, err := NewCachedVariableSets(provider, 0)
	require.NoError(t, err)
	ctx := context.Background()

	for range 3 {
		vs, err := cached.VariableSet(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, "person", vs.Name)
	}
	assert.Equal(t, 1, provider.calls)

	for range 2 {
		_, err := cached.VariableSet(ctx, 9)
		require.ErrorIs(t, err, domain.ErrNotFound)
	}
	assert.Equal(t, 3, provider.calls)
	assert.Equal(t, 1, cached.Len())
}
