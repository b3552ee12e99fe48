package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct{ msg string }

func (r *recorder) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestPredicates(t *testing.T) {
	assert.True(t, InternalImportForbidden(Module+"/internal/query"))
	assert.False(t, InternalImportForbidden(Module+"/pkg/domain"))

	assert.True(t, InfraImportForbidden(Module+"/internal/infra/docstore/mongo"))
	assert.False(t, InfraImportForbidden(Module+"/internal/docstore"))

	assert.True(t, DriverImportForbidden("go.mongodb.org/mongo-driver/v2/mongo"))
	assert.True(t, DriverImportForbidden("github.com/jackc/pgx/v5/stdlib"))
	assert.True(t, DriverImportForbidden("modernc.org/sqlite"))
	assert.False(t, DriverImportForbidden("modernc.org/sqlitex"))
	assert.False(t, DriverImportForbidden("github.com/spf13/viper"))
}

func TestDirectImportsIgnoreTestFilesAndDirectories(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600))
	}
	write("x.go", "package tmp\nimport \"fmt\"\nfunc X() { fmt.Println(1) }\n")
	write("x_test.go", "package tmp\nimport _ \"example.com/mod/internal/db\"\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.go"), 0o700))

	viols, err := directImportViolations(dir, InternalImportForbidden)
	require.NoError(t, err)
	assert.Empty(t, viols)

	write("y.go", "package tmp\nimport _ \"example.com/mod/internal/db\"\n")
	viols, err = directImportViolations(dir, InternalImportForbidden)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com/mod/internal/db (in y.go)"}, viols)

	var r recorder
	failIfDirectViolations(&r, "layering", viols)
	assert.Contains(t, r.msg, "layering")
	assert.Contains(t, r.msg, "y.go")
}

func TestDirectImportsReportParseAndReadErrors(t *testing.T) {
	_, err := directImportViolations(filepath.Join(t.TempDir(), "missing"), InternalImportForbidden)
	require.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.go"), []byte("package"), 0o600))
	_, err = directImportViolations(dir, InternalImportForbidden)
	require.Error(t, err)
}

func TestTransitiveViolationsAreSortedAndUnique(t *testing.T) {
	prev := loadDeps
	t.Cleanup(func() { loadDeps = prev })
	loadDeps = func(string) ([]string, error) {
		return []string{"fmt", "modernc.org/sqlite", "github.com/jackc/pgx/v5", "modernc.org/sqlite"}, nil
	}
	viols, err := transitiveDependencyViolations("./...", DriverImportForbidden)
	require.NoError(t, err)
	assert.Equal(t, []string{"github.com/jackc/pgx/v5", "modernc.org/sqlite"}, viols)

	var r recorder
	failIfTransitiveViolations(&r, "drivers", nil)
	assert.Empty(t, r.msg)
	failIfTransitiveViolations(&r, "drivers", viols)
	assert.Contains(t, r.msg, "modernc.org/sqlite")

	loadDeps = func(string) ([]string, error) { return nil, errors.New("boom") }
	_, err = transitiveDependencyViolations("./...", DriverImportForbidden)
	require.Error(t, err)
}
