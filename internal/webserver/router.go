// Package webserver assembles the chi router, middleware chain and
// multi-listener bind that ties config, auth, listing, render, archive,
// upload, remove, webdavfs, dirsize and sse into the running HTTP server.
package webserver

import (
	"net"
	"net/http"
	"os"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/quickserve/quickserve/internal/apperror"
	"github.com/quickserve/quickserve/internal/archive"
	"github.com/quickserve/quickserve/internal/auth"
	"github.com/quickserve/quickserve/internal/config"
	"github.com/quickserve/quickserve/internal/dirsize"
	"github.com/quickserve/quickserve/internal/listing"
	"github.com/quickserve/quickserve/internal/pathutil"
	"github.com/quickserve/quickserve/internal/remove"
	"github.com/quickserve/quickserve/internal/render"
	"github.com/quickserve/quickserve/internal/sse"
	"github.com/quickserve/quickserve/internal/upload"
	"github.com/quickserve/quickserve/internal/webdavfs"
)

// internalPrefix namespaces the always-public maintenance routes so they
// can never collide with a served file named the same thing.
const internalPrefix = "/__quickserve_internal"

// Server bundles every collaborator the router dispatches to.
type Server struct {
	Config      *config.Config
	Renderer    *render.Renderer
	Broadcaster *sse.Broadcaster
	DirSize     *dirsize.Manager
	Logger      *logrus.Logger
	QRCode      render.QRCodeEncoder
}

// New builds the chi router with every route and middleware wired in.
func (s *Server) New() http.Handler {
	if s.QRCode == nil {
		s.QRCode = render.NoQRCode{}
	}

	r := chi.NewRouter()

	r.Get(internalPrefix+"/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get(internalPrefix+"/favicon.svg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = w.Write(render.FaviconSVG())
	})
	r.Get(internalPrefix+"/style.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		_, _ = w.Write(render.StyleCSS())
	})

	prefix := config.NormalizeRoutePrefix(s.Config.RoutePrefix)

	mount := func(pr chi.Router) {
		pr.Use(s.customHeaders)
		pr.Use(s.routePrefixContext(prefix))
		pr.Use(auth.Middleware(s.Config.Accounts, "quickserve", s.Renderer))
		pr.Use(s.accessLog)

		// /api/sse is registered outside the gzip-compressed group, so its
		// indefinitely flushed event stream is always sent uncompressed.
		pr.Get("/api/sse", s.Broadcaster.NewClient)

		pr.Group(func(gr chi.Router) {
			if s.Config.CompressResponses {
				gr.Use(gzipResponses)
			}

			gr.Post("/upload", (&upload.Handler{Config: s.Config, Responder: s.Renderer, Logger: s.Logger}).ServeHTTP)
			gr.Post("/rm", (&remove.Handler{Config: s.Config, Responder: s.Renderer, Logger: s.Logger}).ServeHTTP)

			if s.Config.WebDAVEnabled {
				davFS := webdavfs.New(s.Config)
				davHandler := davFS.Handler(prefix + "/dav")
				gr.Handle("/dav", davHandler)
				gr.Handle("/dav/*", davHandler)
			}

			gr.Get("/*", s.serveListing)
			gr.Get("/", s.serveListing)
		})
	}

	// A "" route prefix (the common case) is mounted as an inline group on
	// the root router, so its middleware stays off the internal routes
	// registered above; chi.Route requires a non-empty pattern, so a prefix
	// from --route-prefix or --random-route gets a sub-router instead.
	if prefix == "" {
		r.Group(mount)
	} else {
		r.Route(prefix, mount)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.Renderer.RenderError(w, r, apperror.New(apperror.RouteNotFound, r.URL.Path))
	})

	return r
}

// customHeaders applies the operator-supplied response headers to every
// request this server answers, outermost in the chain so even an error
// response carries them.
func (s *Server) customHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, values := range s.Config.CustomHeaders {
			for _, v := range values {
				w.Header().Add(k, v)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// routePrefixContext stashes the resolved prefix on the request context so
// render.RenderError can recover it without a direct dependency on this
// package. When indexing is disabled an empty prefix is stored instead, so
// error pages link back to "/" and never show the route prefix.
func (s *Server) routePrefixContext(prefix string) func(http.Handler) http.Handler {
	if s.Config.DisableIndexing {
		prefix = ""
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, render.WithRoutePrefix(r, prefix))
		})
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Logger != nil {
			s.Logger.WithField("method", r.Method).WithField("path", r.URL.Path).Info("request")
		}
		next.ServeHTTP(w, r)
	})
}

// serveListing handles GET / and every sub-path under the route prefix:
// directory listing, raw listing, file download and archive download all
// share this one entry point, dispatching on the requested path's kind and
// the "download"/"raw" query parameters.
func (s *Server) serveListing(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config

	reqPath, err := pathutil.Sanitize(chi.URLParam(r, "*"), cfg.HiddenVisible)
	if err != nil {
		s.Renderer.RenderError(w, r, asAppError(err))
		return
	}

	absPath := path.Join(cfg.ServedRoot, reqPath)

	if cfg.NoSymlinks {
		if err := pathutil.RejectSymlinkInPath(cfg.ServedRoot, absPath); err != nil {
			s.Renderer.RenderError(w, r, asAppError(err))
			return
		}
	}

	info, statErr := os.Stat(absPath)
	if statErr != nil {
		if s.servePrettyURL(w, r, reqPath) {
			return
		}
		if s.serveSPAFallback(w, r) {
			return
		}
		if os.IsNotExist(statErr) {
			s.Renderer.RenderError(w, r, apperror.New(apperror.RouteNotFound, reqPath))
			return
		}
		s.Renderer.RenderError(w, r, apperror.Wrap(apperror.IO, reqPath, statErr))
		return
	}

	if !info.IsDir() {
		s.serveFile(w, r, absPath, reqPath)
		return
	}

	if dl := r.URL.Query().Get("download"); dl != "" {
		s.serveArchive(w, r, absPath, dl)
		return
	}

	if idxPath, ok := s.indexFilePath(absPath); ok {
		s.serveFile(w, r, idxPath, reqPath)
		return
	}

	s.serveDirListing(w, r, absPath, reqPath)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, absPath, reqPath string) {
	http.ServeFile(w, r, absPath)
}

// indexFilePath reports whether cfg.IndexName names an existing regular file
// inside absDir, returning its path when so. Indexing disabled suppresses
// this the same way it suppresses the listing itself.
func (s *Server) indexFilePath(absDir string) (string, bool) {
	cfg := s.Config
	if cfg.IndexName == "" || cfg.DisableIndexing {
		return "", false
	}
	candidate := path.Join(absDir, cfg.IndexName)
	info, err := os.Stat(candidate)
	if err != nil || info.IsDir() {
		return "", false
	}
	return candidate, true
}

// servePrettyURL resolves reqPath+".html" when cfg.PrettyURLs is set and a
// path with that suffix exists, so e.g. GET /about serves about.html.
func (s *Server) servePrettyURL(w http.ResponseWriter, r *http.Request, reqPath string) bool {
	cfg := s.Config
	if !cfg.PrettyURLs {
		return false
	}
	candidate := path.Join(cfg.ServedRoot, reqPath+".html")
	info, err := os.Stat(candidate)
	if err != nil || info.IsDir() {
		return false
	}
	s.serveFile(w, r, candidate, reqPath)
	return true
}

// serveSPAFallback serves the configured index file for any unresolved path
// when cfg.SPA is set, so a client-side router receives its entry point
// instead of a 404.
func (s *Server) serveSPAFallback(w http.ResponseWriter, r *http.Request) bool {
	cfg := s.Config
	if !cfg.SPA {
		return false
	}
	idx := cfg.IndexName
	if idx == "" {
		idx = "index.html"
	}
	candidate := path.Join(cfg.ServedRoot, idx)
	info, err := os.Stat(candidate)
	if err != nil || info.IsDir() {
		return false
	}
	s.serveFile(w, r, candidate, "")
	return true
}

func (s *Server) serveArchive(w http.ResponseWriter, r *http.Request, absPath, requested string) {
	cfg := s.Config
	if cfg.DisableIndexing {
		// Archive downloads are gated the same as directory listings: a 404,
		// not a 403, so a disabled-indexing server doesn't leak which
		// directories exist.
		s.Renderer.RenderError(w, r, apperror.New(apperror.RouteNotFound, requested))
		return
	}
	method, ok := archive.ParseMethod(requested)
	if !ok {
		s.Renderer.RenderError(w, r, apperror.New(apperror.InvalidPath, requested))
		return
	}
	switch method {
	case archive.Tar:
		if !cfg.TarEnabled {
			s.Renderer.RenderError(w, r, apperror.New(apperror.ArchiveCreation, "tar disabled"))
			return
		}
	case archive.TarGz:
		if !cfg.TarGzEnabled {
			s.Renderer.RenderError(w, r, apperror.New(apperror.ArchiveCreation, "tar.gz disabled"))
			return
		}
	case archive.Zip:
		if !cfg.ZipEnabled {
			s.Renderer.RenderError(w, r, apperror.New(apperror.ArchiveCreation, "zip disabled"))
			return
		}
	}
	if err := archive.Download(w, absPath, method, cfg.NoSymlinks, s.Logger); err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).Warn("archive stream ended early")
		}
	}
}

func (s *Server) serveDirListing(w http.ResponseWriter, r *http.Request, absPath, reqPath string) {
	cfg := s.Config
	q := listing.Query{
		Sort:  config.SortMethod(r.URL.Query().Get("sort")),
		Order: config.SortOrder(r.URL.Query().Get("order")),
		Raw:   r.URL.Query().Get("raw") == "true",
		Theme: r.URL.Query().Get("theme"),
	}

	res, err := listing.Build(absPath, reqPath, cfg, q)
	if err != nil {
		s.Renderer.RenderError(w, r, asAppError(err))
		return
	}

	prefix := config.NormalizeRoutePrefix(cfg.RoutePrefix)
	selfURL := prefix + "/" + reqPath
	data := render.BuildListingData(res, cfg, reqPath, selfURL,
		prefix+internalPrefix+"/style.css",
		prefix+"/upload",
		prefix+"/rm",
		q.Theme,
	)

	if cfg.ShowQRCode {
		if encoded, err := s.QRCode.Encode(selfURL); err == nil {
			data.QRCode = encoded
		}
	}

	if s.DirSize != nil {
		s.DirSize.Submit(dirsize.Task{WebPath: reqPath, AbsPath: absPath})
	}

	var renderErr error
	if q.Raw {
		renderErr = s.Renderer.Raw(w, data)
	} else {
		renderErr = s.Renderer.Listing(w, data)
	}
	if renderErr != nil && s.Logger != nil {
		s.Logger.WithError(renderErr).Warn("template render failed")
	}
}

func asAppError(err error) *apperror.Error {
	var ae *apperror.Error
	if apperror.As(err, &ae) {
		return ae
	}
	return apperror.Wrap(apperror.InvalidPath, "", err)
}

// listenAddrs expands cfg.Interfaces x cfg.Port into concrete host:port
// strings, one bind per interface, matching the teacher's pattern of
// treating 0.0.0.0 and :: as distinct sockets rather than one dual-stack
// listener.
func listenAddrs(cfg *config.Config) []string {
	addrs := make([]string, 0, len(cfg.Interfaces))
	for _, iface := range cfg.Interfaces {
		addrs = append(addrs, net.JoinHostPort(iface, strconv.Itoa(int(cfg.Port))))
	}
	return addrs
}
