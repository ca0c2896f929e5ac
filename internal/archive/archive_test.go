package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "a.txt"), []byte("hello"), 0o644))
	nested := filepath.Join(sub, "nested")
	require.NoError(t, os.Mkdir(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "b.txt"), []byte("world"), 0o644))
	return sub
}

func TestTarContainsAllDescendants(t *testing.T) {
	dir := makeTree(t)
	var buf bytes.Buffer
	s := &Streamer{}
	require.NoError(t, s.Tar(&buf, dir))

	tr := tar.NewReader(&buf)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
		assert.False(t, strings.Contains(hdr.Name, `\`))
	}
	assert.Contains(t, names, "sub/a.txt")
	assert.Contains(t, names, "sub/nested/")
	assert.Contains(t, names, "sub/nested/b.txt")
}

func TestTarGzRoundtrips(t *testing.T) {
	dir := makeTree(t)
	var buf bytes.Buffer
	s := &Streamer{}
	require.NoError(t, s.TarGz(&buf, dir))

	gr, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	tr := tar.NewReader(gr)
	found := false
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Name == "sub/a.txt" {
			found = true
			data, _ := io.ReadAll(tr)
			assert.Equal(t, "hello", string(data))
		}
	}
	assert.True(t, found)
}

func TestZipUsesForwardSlashesAndStored(t *testing.T) {
	dir := makeTree(t)
	var buf bytes.Buffer
	s := &Streamer{}
	require.NoError(t, s.Zip(&buf, dir))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		assert.False(t, strings.Contains(f.Name, `\`))
		assert.Equal(t, zip.Store, f.Method)
	}
	assert.Contains(t, names, "sub/a.txt")
	assert.Contains(t, names, "sub/nested/")
	assert.Contains(t, names, "sub/nested/b.txt")
}

func TestZipTopLevelNameIsDirBasename(t *testing.T) {
	dir := makeTree(t)
	var buf bytes.Buffer
	s := &Streamer{}
	require.NoError(t, s.Zip(&buf, dir))
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	for _, f := range zr.File {
		assert.True(t, strings.HasPrefix(f.Name, "sub/") || f.Name == "sub/")
	}
}

func TestSkipSymlinksOmitsEntries(t *testing.T) {
	dir := makeTree(t)
	require.NoError(t, os.Symlink(filepath.Join(dir, "a.txt"), filepath.Join(dir, "link.txt")))

	s := &Streamer{SkipSymlinks: true}
	var buf bytes.Buffer
	require.NoError(t, s.Tar(&buf, dir))
	tr := tar.NewReader(&buf)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.NotEqual(t, "sub/link.txt", hdr.Name)
	}
}

func TestArchiveFilename(t *testing.T) {
	assert.Equal(t, "sub.tar.gz", ArchiveFilename("/a/b/sub", TarGz))
	assert.Equal(t, "sub.zip", ArchiveFilename("/a/b/sub", Zip))
	assert.Equal(t, "sub.tar", ArchiveFilename("/a/b/sub", Tar))
}
