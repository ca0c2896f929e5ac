// Package webdavfs adapts the served root to golang.org/x/net/webdav's
// FileSystem interface, applying the same hidden-file and symlink policy the
// browsing and mutating handlers enforce.
package webdavfs

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/webdav"

	"github.com/quickserve/quickserve/internal/apperror"
	"github.com/quickserve/quickserve/internal/config"
	"github.com/quickserve/quickserve/internal/pathutil"
)

// FS wraps a webdav.Dir rooted at cfg.ServedRoot, rejecting names that
// resolve to a hidden component (unless the served tree allows it) or that
// cross a symlink when cfg.NoSymlinks is set.
type FS struct {
	root       webdav.Dir
	servedRoot string
	cfg        *config.Config
}

// New builds an FS serving cfg.ServedRoot.
func New(cfg *config.Config) *FS {
	return &FS{
		root:       webdav.Dir(cfg.ServedRoot),
		servedRoot: cfg.ServedRoot,
		cfg:        cfg,
	}
}

// Handler returns a ready-to-mount http.Handler using fs as its backend and
// an in-memory lock system, per the overlay's "no persistent locks across
// restarts" behavior. Requests for a hidden path are turned into a 404
// before reaching golang.org/x/net/webdav, since that package's own status
// mapping doesn't uniformly turn a FileSystem permission error into 404
// (PROPFIND in particular falls back to 500).
func (fs *FS) Handler(prefix string) http.Handler {
	dav := &webdav.Handler{
		Prefix:     prefix,
		FileSystem: fs,
		LockSystem: webdav.NewMemLS(),
	}
	return &hiddenPathGuard{fs: fs, prefix: prefix, next: dav}
}

// hiddenPathGuard pre-checks a DAV request's path against the same
// hidden/symlink policy FS.checkName enforces, short-circuiting to 404
// before golang.org/x/net/webdav gets a chance to answer with a 500.
type hiddenPathGuard struct {
	fs     *FS
	prefix string
	next   http.Handler
}

func (g *hiddenPathGuard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, g.prefix)
	if err := g.fs.checkName(name); err != nil {
		NotFoundIfHidden(w, r, err)
		return
	}
	g.next.ServeHTTP(w, r)
}

func (fs *FS) checkName(name string) error {
	clean := strings.Trim(filepath.ToSlash(name), "/")
	if clean == "" {
		return nil
	}
	if !fs.cfg.HiddenVisible && pathutil.HasHiddenComponent(clean) {
		return os.ErrPermission
	}
	if fs.cfg.NoSymlinks {
		// Covers the terminal component too, not just its ancestors: a DAV
		// GET/PROPFIND on a symlinked leaf is itself the access being
		// gated, same as a direct HTTP GET through the listing router.
		target := filepath.Join(fs.servedRoot, filepath.FromSlash(clean))
		if err := pathutil.RejectSymlinkInPath(fs.servedRoot, target); err != nil {
			return os.ErrPermission
		}
	}
	return nil
}

func (fs *FS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	if !fs.cfg.WebDAVEnabled {
		return os.ErrPermission
	}
	if err := fs.checkName(name); err != nil {
		return err
	}
	return fs.root.Mkdir(ctx, name, perm)
}

func (fs *FS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	if err := fs.checkName(name); err != nil {
		return nil, err
	}
	isWrite := flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC) != 0
	if isWrite && !fs.cfg.WebDAVEnabled {
		return nil, os.ErrPermission
	}
	f, err := fs.root.OpenFile(ctx, name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &file{File: f, fs: fs}, nil
}

func (fs *FS) RemoveAll(ctx context.Context, name string) error {
	if !fs.cfg.WebDAVEnabled {
		return os.ErrPermission
	}
	if err := fs.checkName(name); err != nil {
		return err
	}
	return fs.root.RemoveAll(ctx, name)
}

func (fs *FS) Rename(ctx context.Context, oldName, newName string) error {
	if !fs.cfg.WebDAVEnabled {
		return os.ErrPermission
	}
	if err := fs.checkName(oldName); err != nil {
		return err
	}
	if err := fs.checkName(newName); err != nil {
		return err
	}
	return fs.root.Rename(ctx, oldName, newName)
}

func (fs *FS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	if err := fs.checkName(name); err != nil {
		return nil, err
	}
	return fs.root.Stat(ctx, name)
}

// file wraps webdav.File to filter hidden entries out of directory listings
// served through PROPFIND.
type file struct {
	webdav.File
	fs *FS
}

func (f *file) Readdir(count int) ([]os.FileInfo, error) {
	infos, err := f.File.Readdir(count)
	if err != nil {
		return nil, err
	}
	if f.fs.cfg.HiddenVisible {
		return infos, nil
	}
	visible := infos[:0]
	for _, info := range infos {
		if !strings.HasPrefix(info.Name(), ".") {
			visible = append(visible, info)
		}
	}
	return visible, nil
}

// ValidateServePath refuses to serve a root that is itself a symlink when
// NoSymlinks is set, or that is not a directory. Despite the package name
// this isn't WebDAV-specific — main calls it unconditionally at startup,
// since --no-symlinks over a symlinked served root should be rejected the
// same way regardless of which protocol is mounted.
func ValidateServePath(cfg *config.Config) error {
	info, err := os.Lstat(cfg.ServedRoot)
	if err != nil {
		return err
	}
	if cfg.NoSymlinks && info.Mode()&os.ModeSymlink != 0 {
		return apperror.New(apperror.NoSymlinksOptionWithSymlinkServePath, cfg.ServedRoot)
	}
	resolved, err := os.Stat(cfg.ServedRoot)
	if err != nil {
		return err
	}
	if !resolved.IsDir() {
		return os.ErrInvalid
	}
	return nil
}

// NotFoundIfHidden is the helper hiddenPathGuard uses to turn a permission
// failure from FS.checkName (a hidden component, or a symlink under
// NoSymlinks) into a 404 rather than a 403, since such a path should look
// like it doesn't exist. It reports whether it wrote a response.
func NotFoundIfHidden(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == os.ErrPermission {
		http.NotFound(w, r)
		return true
	}
	return false
}
