// Package config holds the immutable, startup-assembled configuration of a
// quickserve instance: the served root, network binding, feature flags and
// the account list used by the auth middleware.
package config

import "net/http"

// SortMethod is a listing sort key.
type SortMethod string

const (
	SortByName SortMethod = "name"
	SortBySize SortMethod = "size"
	SortByDate SortMethod = "date"
)

// SortOrder is a listing sort direction.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// Config is constructed once at startup from parsed CLI flags and is never
// mutated afterward; every handler receives a pointer to the same instance.
type Config struct {
	ServedRoot string // absolute, canonicalized

	Interfaces []string
	Port       uint16

	IndexName   string
	SPA         bool
	PrettyURLs  bool
	RoutePrefix string // "" or "/segment..."

	TLSCertFile string
	TLSKeyFile  string

	HiddenVisible bool
	NoSymlinks    bool

	TarEnabled    bool
	TarGzEnabled  bool
	ZipEnabled    bool

	UploadEnabled     bool
	AllowedUploadDirs []string // relative, slash-normalized; empty means "any"
	MkdirEnabled      bool
	Overwrite         bool

	DeleteEnabled     bool
	AllowedDeleteDirs []string

	WebDAVEnabled     bool
	CompressResponses bool

	DirsFirst    bool
	DefaultSort  SortMethod
	DefaultOrder SortOrder
	Theme        string

	CustomHeaders http.Header

	Accounts []Account

	MediaType    string
	MediaTypeRaw bool
	Title        string

	ShowFooter       bool
	ShowWgetFooter   bool
	ShowReadme       bool
	ShowQRCode       bool
	DisableIndexing  bool

	ExactSizeFormat bool // when true, dir-size broadcasts raw byte counts
}

// AnyArchiveEnabled reports whether at least one archive method is enabled,
// used to decide whether to show download buttons at all.
func (c *Config) AnyArchiveEnabled() bool {
	return c.TarEnabled || c.TarGzEnabled || c.ZipEnabled
}

// Default returns a Config with the same defaults the CLI flags fall back
// to, matching the teacher's pattern of a DefaultCfg/DefaultOpt constructor
// independent of flag parsing so tests and programmatic callers don't need
// a cobra command to build one.
func Default() *Config {
	return &Config{
		Interfaces:    []string{"127.0.0.1", "::1"},
		Port:          8080,
		DirsFirst:     true,
		DefaultSort:   SortByName,
		DefaultOrder:  OrderAsc,
		Theme:         "squindo",
		CustomHeaders: http.Header{},
		ShowFooter:    true,
	}
}
