package dirsize

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quickserve/quickserve/internal/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512", FormatSize(512, true))
	assert.Equal(t, "512 B", FormatSize(512, false))
	assert.Equal(t, "1.0 KiB", FormatSize(1024, false))
}

func TestSumTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), make([]byte, 10), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), make([]byte, 20), 0o644))

	size, err := sumTree(dir)
	require.NoError(t, err)
	assert.EqualValues(t, 30, size)
}

func TestSubmitBroadcastsDirSizeEvent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), make([]byte, 30), 0o644))

	b := sse.New(nil)
	defer b.Stop()
	m := New(b, nil, false)
	defer m.Stop()

	req := httptest.NewRequest("GET", "/api/sse", nil)
	w := httptest.NewRecorder()
	go b.NewClient(w, req)
	time.Sleep(20 * time.Millisecond)

	m.Submit(Task{WebPath: "/d", AbsPath: dir})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(w.Body.String(), "event: dir-size") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	body := w.Body.String()
	assert.Contains(t, body, "event: dir-size")
	assert.Contains(t, body, `"web_path":"/d"`)
	assert.Contains(t, body, `"size":"30 B"`)
}

func TestSubmitDeduplicatesInFlightTask(t *testing.T) {
	dir := t.TempDir()
	b := sse.New(nil)
	defer b.Stop()
	m := New(b, nil, false)
	defer m.Stop()

	m.mu.Lock()
	m.pending["/d"] = struct{}{}
	m.mu.Unlock()

	m.Submit(Task{WebPath: "/d", AbsPath: dir})

	m.mu.Lock()
	_, stillPending := m.pending["/d"]
	m.mu.Unlock()
	assert.True(t, stillPending)
}
