package render

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quickserve/quickserve/internal/apperror"
	"github.com/quickserve/quickserve/internal/config"
	"github.com/quickserve/quickserve/internal/listing"
	"github.com/quickserve/quickserve/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingRendersEntriesAndEscapesNames(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	size := int64(42)
	res := &listing.Result{
		Entries: []model.Entry{
			{Name: "<script>.txt", Kind: model.File, Link: "%3Cscript%3E.txt", Size: &size},
		},
		Breadcrumbs: []model.Breadcrumb{{Name: "/", Link: "."}},
	}
	cfg := config.Default()
	data := BuildListingData(res, cfg, "", "http://x/", "/style.css", "/upload", "/rm", "")

	w := httptest.NewRecorder()
	require.NoError(t, r.Listing(w, data))
	body := w.Body.String()
	assert.Contains(t, body, "&lt;script&gt;.txt")
	assert.NotContains(t, body, "<script>.txt</a>")
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
}

func TestRawRendersMinimalPage(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	res := &listing.Result{
		Entries: []model.Entry{{Name: "a.txt", Kind: model.File, Link: "a.txt"}},
	}
	data := BuildListingData(res, config.Default(), "", "http://x/", "", "", "", "")
	w := httptest.NewRecorder()
	require.NoError(t, r.Raw(w, data))
	assert.Contains(t, w.Body.String(), `<a href="a.txt">a.txt</a>`)
}

func TestRenderErrorWritesStatusAndHidesNothingSensitive(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secret-prefix/x", nil)
	req = WithRoutePrefix(req, "/secret-prefix")

	r.RenderError(w, req, apperror.New(apperror.RouteNotFound, "/x"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Not Found")
}

