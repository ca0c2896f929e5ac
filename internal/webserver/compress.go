package webserver

import (
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// gzipResponses wraps next so that any response is transparently
// gzip-compressed when the client advertises support for it, using the
// same klauspost/compress implementation the tar.gz archive method uses.
// A request for an already-compressed payload (an archive download) or a
// byte-range request is passed through unchanged: re-gzipping a tar.gz is
// wasted CPU for no size benefit, and a Range response's declared
// Content-Range would no longer match a compressed body.
func gzipResponses(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Range") != "" {
			next.ServeHTTP(w, r)
			return
		}
		if dl := r.URL.Query().Get("download"); dl != "" {
			next.ServeHTTP(w, r)
			return
		}

		gw := gzip.NewWriter(w)
		defer gw.Close()
		gzw := &gzipResponseWriter{ResponseWriter: w, gw: gw}
		next.ServeHTTP(gzw, r)
	})
}

// gzipResponseWriter redirects the body through a gzip.Writer while leaving
// status-code handling to the wrapped ResponseWriter. Content-Length is
// dropped before the header is sent, since it describes the uncompressed
// body and would otherwise mismatch the compressed bytes actually written.
type gzipResponseWriter struct {
	http.ResponseWriter
	gw          *gzip.Writer
	wroteHeader bool
}

func (g *gzipResponseWriter) prepareHeader() {
	if g.wroteHeader {
		return
	}
	g.wroteHeader = true
	g.Header().Del("Content-Length")
	g.Header().Set("Content-Encoding", "gzip")
	g.Header().Add("Vary", "Accept-Encoding")
}

func (g *gzipResponseWriter) WriteHeader(status int) {
	g.prepareHeader()
	g.ResponseWriter.WriteHeader(status)
}

func (g *gzipResponseWriter) Write(p []byte) (int, error) {
	g.prepareHeader()
	return g.gw.Write(p)
}

// Flush flushes the gzip writer's internal buffer before flushing the
// underlying ResponseWriter, so a streamed response (e.g. a large listing
// rendered incrementally) doesn't sit buffered inside gw indefinitely.
func (g *gzipResponseWriter) Flush() {
	_ = g.gw.Flush()
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
