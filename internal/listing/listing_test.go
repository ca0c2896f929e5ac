package listing

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quickserve/quickserve/internal/apperror"
	"github.com/quickserve/quickserve/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, size int, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestBuildRejectsWhenIndexingDisabled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", 10, time.Now())

	cfg := config.Default()
	cfg.DisableIndexing = true

	_, err := Build(dir, "", cfg, Query{})
	require.Error(t, err)
	var ae *apperror.Error
	require.True(t, apperror.As(err, &ae))
	assert.Equal(t, apperror.RouteNotFound, ae.Kind)
}

func TestBuildSortBySizeAndDate(t *testing.T) {
	dir := t.TempDir()
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	writeFile(t, dir, "a.txt", 10, t1)
	writeFile(t, dir, "b.txt", 20, t2)

	cfg := config.Default()

	res, err := Build(dir, "", cfg, Query{Sort: config.SortBySize, Order: config.OrderDesc})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "b.txt", res.Entries[0].Name)
	assert.Equal(t, "a.txt", res.Entries[1].Name)

	res, err = Build(dir, "", cfg, Query{Sort: config.SortByDate, Order: config.OrderAsc})
	require.NoError(t, err)
	assert.Equal(t, "a.txt", res.Entries[0].Name)
	assert.Equal(t, "b.txt", res.Entries[1].Name)
}

func TestBuildHidesDotFilesByDefault(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".hidden", 1, time.Now())
	writeFile(t, dir, "visible", 1, time.Now())

	cfg := config.Default()
	res, err := Build(dir, "", cfg, Query{})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "visible", res.Entries[0].Name)

	cfg.HiddenVisible = true
	res, err = Build(dir, "", cfg, Query{})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 2)
}

func TestBuildDirsFirst(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "z.txt", 1, time.Now())
	require.NoError(t, os.Mkdir(filepath.Join(dir, "a_dir"), 0o755))

	cfg := config.Default()
	cfg.DirsFirst = true
	res, err := Build(dir, "", cfg, Query{})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.True(t, res.Entries[0].IsDir())
}

func TestNaturalSort(t *testing.T) {
	names := []string{"file10", "file2", "file1"}
	assert.True(t, naturalLess(names[2], names[1]))
	assert.True(t, naturalLess(names[1], names[0]))
}

func TestBuildBreadcrumbs(t *testing.T) {
	crumbs := buildBreadcrumbs("")
	require.Len(t, crumbs, 1)
	assert.Equal(t, ".", crumbs[0].Link)

	crumbs = buildBreadcrumbs("a/b/c")
	require.Len(t, crumbs, 4)
	assert.Equal(t, ".", crumbs[3].Link)
	assert.Equal(t, "c", crumbs[3].Name)
	assert.Equal(t, "../../../", crumbs[0].Link)
}

func TestBuildSkipsSymlinksWhenDisallowed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "real.txt", 1, time.Now())
	require.NoError(t, os.Symlink(filepath.Join(dir, "real.txt"), filepath.Join(dir, "link.txt")))

	cfg := config.Default()
	cfg.NoSymlinks = true
	res, err := Build(dir, "", cfg, Query{})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "real.txt", res.Entries[0].Name)

	cfg.NoSymlinks = false
	res, err = Build(dir, "", cfg, Query{})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 2)
}
