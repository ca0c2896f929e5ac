package webserver

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/quickserve/quickserve/internal/config"
)

// LoadTLSConfig assembles a tls.Config from cfg.TLSCertFile/TLSKeyFile. The
// handshake itself is left entirely to crypto/tls; this only loads the
// certificate pair. Returns (nil, nil) when TLS wasn't requested, so callers
// can treat a nil *tls.Config as "serve plain HTTP".
func LoadTLSConfig(cfg *config.Config) (*tls.Config, error) {
	if cfg.TLSCertFile == "" && cfg.TLSKeyFile == "" {
		return nil, nil
	}
	if cfg.TLSCertFile == "" || cfg.TLSKeyFile == "" {
		return nil, fmt.Errorf("--tls-cert and --tls-key must both be set to enable TLS")
	}
	cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// Listen binds one net.Listener per configured interface, matching the
// teacher's ListenAddr []string pattern: 0.0.0.0 and :: are bound as
// distinct sockets rather than coalesced into a single dual-stack listener.
// A bind failure on any interface is fatal and aborts the remaining binds.
func Listen(cfg *config.Config) ([]net.Listener, error) {
	addrs := listenAddrs(cfg)
	listeners := make([]net.Listener, 0, len(addrs))
	for _, addr := range addrs {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			for _, opened := range listeners {
				_ = opened.Close()
			}
			return nil, err
		}
		listeners = append(listeners, l)
	}
	return listeners, nil
}

// Serve runs handler on every listener concurrently, returning the first
// error any of them produces. Each listener's Serve blocks, so this never
// returns during normal operation. When tlsConfig is non-nil, every listener
// is wrapped with it and served as HTTPS instead of plain HTTP.
func Serve(listeners []net.Listener, handler http.Handler, tlsConfig *tls.Config, logger *logrus.Logger) error {
	errs := make(chan error, len(listeners))
	scheme := "http"
	if tlsConfig != nil {
		scheme = "https"
	}
	for _, l := range listeners {
		l := l
		if tlsConfig != nil {
			l = tls.NewListener(l, tlsConfig)
		}
		go func() {
			if logger != nil {
				logger.WithField("addr", l.Addr().String()).WithField("scheme", scheme).Info("listening")
			}
			errs <- http.Serve(l, handler)
		}()
	}
	return <-errs
}
