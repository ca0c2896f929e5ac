package remove

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/quickserve/quickserve/internal/apperror"
	"github.com/quickserve/quickserve/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingResponder struct {
	called bool
	kind   apperror.Kind
}

func (r *recordingResponder) RenderError(w http.ResponseWriter, req *http.Request, err *apperror.Error) {
	r.called = true
	r.kind = err.Kind
	w.WriteHeader(apperror.StatusFor(err.Kind))
}

func testConfig(root string) *config.Config {
	cfg := config.Default()
	cfg.ServedRoot = root
	cfg.DeleteEnabled = true
	return cfg
}

func TestRemoveDeletesFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("x"), 0o644))
	h := &Handler{Config: testConfig(root), Responder: &recordingResponder{}}

	req := httptest.NewRequest(http.MethodPost, "/rm?path=f.txt", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	_, err := os.Stat(filepath.Join(root, "f.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveDeletesDirectoryRecursively(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "nested", "f.txt"), []byte("x"), 0o644))
	h := &Handler{Config: testConfig(root), Responder: &recordingResponder{}}

	req := httptest.NewRequest(http.MethodPost, "/rm?path=sub", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	_, err := os.Stat(filepath.Join(root, "sub"))
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveDisabledRejected(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("x"), 0o644))
	cfg := testConfig(root)
	cfg.DeleteEnabled = false
	responder := &recordingResponder{}
	h := &Handler{Config: cfg, Responder: responder}

	req := httptest.NewRequest(http.MethodPost, "/rm?path=f.txt", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.True(t, responder.called)
	assert.Equal(t, apperror.DeleteForbidden, responder.kind)
}

func TestRemoveRejectsOutsideAllowedDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "some", "dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "other.txt"), []byte("x"), 0o644))
	cfg := testConfig(root)
	cfg.AllowedDeleteDirs = []string{"some/dir"}
	responder := &recordingResponder{}
	h := &Handler{Config: cfg, Responder: responder}

	req := httptest.NewRequest(http.MethodPost, "/rm?path=other.txt", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.True(t, responder.called)
	assert.Equal(t, apperror.DeleteForbidden, responder.kind)
	_, err := os.Stat(filepath.Join(root, "other.txt"))
	assert.NoError(t, err)
}

func TestRemoveRefusesServedRoot(t *testing.T) {
	root := t.TempDir()
	responder := &recordingResponder{}
	h := &Handler{Config: testConfig(root), Responder: responder}

	req := httptest.NewRequest(http.MethodPost, "/rm?path=", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.True(t, responder.called)
	assert.Equal(t, apperror.InvalidPath, responder.kind)
}

func TestRemoveNonexistentTargetErrors(t *testing.T) {
	root := t.TempDir()
	responder := &recordingResponder{}
	h := &Handler{Config: testConfig(root), Responder: responder}

	req := httptest.NewRequest(http.MethodPost, "/rm?path=missing.txt", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.True(t, responder.called)
	assert.Equal(t, apperror.IO, responder.kind)
}
