package config

import (
	"strings"

	"github.com/google/uuid"
)

// RandomRoutePrefix generates an opaque 8-character route prefix for
// --random-route, e.g. "/a1b2c3d4". Using the leading hex digits of a v4
// UUID gives a cheap, collision-resistant, URL-safe token without inventing
// a bespoke random-string generator.
func RandomRoutePrefix() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "/" + id[:8]
}

// NormalizeRoutePrefix ensures a non-empty prefix starts with "/" and never
// ends with one, so route registration can blindly concatenate
// prefix+"/upload" etc.
func NormalizeRoutePrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimSuffix(prefix, "/")
}
