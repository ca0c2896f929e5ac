// Package auth implements the Basic-auth credential matcher and the HTTP
// middleware that gates every non-public route behind it.
package auth

import (
	"net/http"

	"github.com/quickserve/quickserve/internal/apperror"
	"github.com/quickserve/quickserve/internal/config"
)

// ErrorResponder renders a themed error page for a failed request. It is
// implemented by internal/render.Renderer and injected here so every
// middleware and handler reports failures through the same single
// rendering path instead of each writing its own response.
type ErrorResponder interface {
	RenderError(w http.ResponseWriter, r *http.Request, err *apperror.Error)
}

// Match reports whether (user, pass) matches any configured account. The
// first account whose username matches decides the outcome; duplicate
// usernames are tolerated (first match wins), matching the deliberate
// choice not to reject them at startup.
func Match(user, pass string, accounts []config.Account) bool {
	for _, acct := range accounts {
		if acct.Username == user {
			return acct.Password.Match(pass)
		}
	}
	return false
}

// Middleware returns a middleware enforcing Basic auth against accounts. If
// accounts is empty, every request passes through unauthenticated — the
// server has no auth configured at all. Callers mount the internal health,
// favicon and css routes outside this middleware entirely, since those must
// always be public.
func Middleware(accounts []config.Account, realm string, responder ErrorResponder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(accounts) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || !Match(user, pass, accounts) {
				w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
				responder.RenderError(w, r, apperror.New(apperror.InvalidHTTPCredentials, ""))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
