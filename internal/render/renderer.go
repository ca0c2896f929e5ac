// Package render produces the listing, raw and error HTML pages from
// Entry lists and config, the way lib/http.GetTemplate lets the teacher
// load either an embedded default template or an operator-supplied one.
package render

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/quickserve/quickserve/internal/apperror"
	"github.com/quickserve/quickserve/internal/config"
	"github.com/quickserve/quickserve/internal/dirsize"
	"github.com/quickserve/quickserve/internal/listing"
	"github.com/quickserve/quickserve/internal/model"
)

//go:embed templates/*.tmpl
var embedded embed.FS

// Renderer renders listing, raw and error pages. It holds no per-request
// state, so it is safe to share across goroutines and deterministic for
// property tests: its output is purely a function of its inputs.
type Renderer struct {
	listingTmpl *template.Template
	rawTmpl     *template.Template
	errorTmpl   *template.Template
	Logger      *logrus.Logger
}

// New loads the embedded default templates.
func New() (*Renderer, error) {
	return load(embedded, "templates/listing.html.tmpl", "templates/raw.html.tmpl", "templates/error.html.tmpl")
}

// NewFromFiles loads operator-supplied template overrides from disk,
// falling back to the embedded default for any path left empty, mirroring
// the teacher's GetTemplate(path) override pattern.
func NewFromFiles(listingPath, rawPath, errorPath string) (*Renderer, error) {
	r, err := New()
	if err != nil {
		return nil, err
	}
	if listingPath != "" {
		t, err := template.New("listing").Funcs(funcMap).ParseFiles(listingPath)
		if err != nil {
			return nil, apperror.Wrap(apperror.ParseError, listingPath, err)
		}
		r.listingTmpl = t
	}
	if rawPath != "" {
		t, err := template.New("raw").Funcs(funcMap).ParseFiles(rawPath)
		if err != nil {
			return nil, apperror.Wrap(apperror.ParseError, rawPath, err)
		}
		r.rawTmpl = t
	}
	if errorPath != "" {
		t, err := template.New("error").Funcs(funcMap).ParseFiles(errorPath)
		if err != nil {
			return nil, apperror.Wrap(apperror.ParseError, errorPath, err)
		}
		r.errorTmpl = t
	}
	return r, nil
}

var funcMap = template.FuncMap{}

func load(fsys embed.FS, listingPath, rawPath, errorPath string) (*Renderer, error) {
	listingTmpl, err := template.New("listing.html.tmpl").Funcs(funcMap).ParseFS(fsys, listingPath)
	if err != nil {
		return nil, apperror.Wrap(apperror.ParseError, listingPath, err)
	}
	rawTmpl, err := template.New("raw.html.tmpl").Funcs(funcMap).ParseFS(fsys, rawPath)
	if err != nil {
		return nil, apperror.Wrap(apperror.ParseError, rawPath, err)
	}
	errorTmpl, err := template.New("error.html.tmpl").Funcs(funcMap).ParseFS(fsys, errorPath)
	if err != nil {
		return nil, apperror.Wrap(apperror.ParseError, errorPath, err)
	}
	return &Renderer{listingTmpl: listingTmpl, rawTmpl: rawTmpl, errorTmpl: errorTmpl}, nil
}

// EntryView is the per-entry data passed to the listing and raw templates;
// all display strings are precomputed so the template itself never needs to
// call back into Go logic beyond field access.
type EntryView struct {
	Name          string
	Link          string
	IsDirFlag     bool
	IsSymlinkFlag bool
	SymlinkTarget string
	DisplaySize   string
	DisplayModTime string
}

// ListingData is the full input to the listing/raw templates. It embeds no
// hidden state: every value the template needs is a field here.
type ListingData struct {
	Title          string
	Theme          string
	CurrentPath    string // sanitized request path, no leading/trailing slash
	Breadcrumbs    []model.Breadcrumb
	Entries        []EntryView
	HasParent      bool
	Readme         string
	QRCode         string
	SelfURL        string
	StylesheetHref string
	UploadAction   string
	rmBase         string

	Sort  config.SortMethod
	Order config.SortOrder

	TarEnabled     bool
	TarGzEnabled   bool
	ZipEnabled     bool
	UploadEnabled  bool
	MkdirEnabled   bool
	DeleteEnabled  bool
	ShowFooter     bool
	ShowWgetFooter bool
	MediaType      string
}

// AnyArchiveEnabled is used by the template to decide whether to render the
// download-buttons block at all.
func (d ListingData) AnyArchiveEnabled() bool {
	return d.TarEnabled || d.TarGzEnabled || d.ZipEnabled
}

// DeleteURL builds the rm-form action for the entry named name, joining it
// onto the current directory.
func (d ListingData) DeleteURL(name string) string {
	joined := name
	if d.CurrentPath != "" {
		joined = d.CurrentPath + "/" + name
	}
	return d.rmBase + "?" + url.Values{"path": {joined}}.Encode()
}

// ToggleOrder returns "asc"/"desc" for a sort-header link: if the listing
// is currently sorted by key (in either direction), clicking again flips
// the order; otherwise it defaults to ascending.
func (d ListingData) ToggleOrder(key string) string {
	if string(d.Sort) == key {
		if d.Order == config.OrderAsc {
			return string(config.OrderDesc)
		}
		return string(config.OrderAsc)
	}
	return string(config.OrderAsc)
}

// BuildListingData converts a listing.Result plus config into the
// template-ready ListingData. theme overrides cfg.Theme when set.
// stylesheetHref, uploadBase and rmBase are fully resolved URLs (already
// including any route prefix) computed by the caller, which alone knows how
// the router mounted each route.
func BuildListingData(res *listing.Result, cfg *config.Config, currentPath, selfURL, stylesheetHref, uploadBase, rmBase, theme string) ListingData {
	if theme == "" {
		theme = cfg.Theme
	}
	entries := make([]EntryView, 0, len(res.Entries))
	for _, e := range res.Entries {
		ev := EntryView{
			Name:          e.Name,
			Link:          e.Link,
			IsDirFlag:     e.IsDir(),
			IsSymlinkFlag: e.Kind == model.Symlink,
			DisplaySize:   displaySize(e),
			DisplayModTime: displayModTime(e),
		}
		if e.SymlinkTarget != nil {
			ev.SymlinkTarget = *e.SymlinkTarget
		}
		entries = append(entries, ev)
	}

	var readme string
	if res.Readme != nil {
		readme = res.Readme.Body
	}

	title := "Directory listing for /" + currentPath
	if currentPath == "" {
		title = "Directory listing for /"
	}
	if cfg.Title != "" {
		title = cfg.Title
	}

	uploadQuery := url.Values{"path": {currentPath}}
	return ListingData{
		Title:          title,
		Theme:          theme,
		CurrentPath:    currentPath,
		Breadcrumbs:    res.Breadcrumbs,
		Entries:        entries,
		HasParent:      res.HasParent,
		Readme:         readme,
		SelfURL:        selfURL,
		StylesheetHref: stylesheetHref,
		UploadAction:   uploadBase + "?" + uploadQuery.Encode(),
		rmBase:         rmBase,
		Sort:           res.Sort,
		Order:          res.Order,
		TarEnabled:     cfg.TarEnabled,
		TarGzEnabled:   cfg.TarGzEnabled,
		ZipEnabled:     cfg.ZipEnabled,
		UploadEnabled:  cfg.UploadEnabled,
		MkdirEnabled:   cfg.MkdirEnabled,
		DeleteEnabled:  cfg.DeleteEnabled,
		ShowFooter:     cfg.ShowFooter,
		ShowWgetFooter: cfg.ShowWgetFooter,
		MediaType:      cfg.MediaType,
	}
}

func displaySize(e model.Entry) string {
	if e.Size == nil {
		return "-"
	}
	return dirsize.FormatSize(*e.Size, false)
}

func displayModTime(e model.Entry) string {
	if e.ModTime == nil {
		return ""
	}
	return e.ModTime.Format("2006-01-02 15:04:05")
}

// Listing renders the full themed listing page.
func (r *Renderer) Listing(w http.ResponseWriter, data ListingData) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return r.listingTmpl.ExecuteTemplate(w, "listing.html.tmpl", data)
}

// Raw renders the minimal wget-friendly listing page.
func (r *Renderer) Raw(w http.ResponseWriter, data ListingData) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return r.rawTmpl.ExecuteTemplate(w, "raw.html.tmpl", data)
}

// ErrorData is the input to the error template.
type ErrorData struct {
	Status     int
	StatusText string
	Message    string
	Home       string
}

// RenderError implements auth.ErrorResponder and is the single place every
// handler and middleware failure is turned into a response: it resolves
// the status from the error kind and writes the themed error page. home is
// built from the route prefix the router stored on the request context (""
// or "/prefix"); the router stores "" when indexing is disabled, so a
// --random-route prefix never appears in an error body then.
func (r *Renderer) RenderError(w http.ResponseWriter, req *http.Request, err *apperror.Error) {
	status := apperror.StatusFor(err.Kind)
	if r.Logger != nil {
		r.Logger.WithError(err).WithField("status", status).WithField("path", req.URL.Path).Warn("request failed")
	}
	home := "/"
	if v := req.Context().Value(routePrefixKey{}); v != nil {
		if s, ok := v.(string); ok && s != "" {
			home = s + "/"
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	data := ErrorData{
		Status:     status,
		StatusText: http.StatusText(status),
		Message:    err.Error(),
		Home:       home,
	}
	_ = r.errorTmpl.ExecuteTemplate(w, "error.html.tmpl", data)
}

// routePrefixKey is the context key under which the router stores the
// current request's resolved route prefix.
type routePrefixKey struct{}

// WithRoutePrefix attaches prefix to the request context so RenderError can
// recover it without depending on the webserver package.
func WithRoutePrefix(r *http.Request, prefix string) *http.Request {
	ctx := context.WithValue(r.Context(), routePrefixKey{}, prefix)
	return r.WithContext(ctx)
}
