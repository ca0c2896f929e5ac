// Package remove implements the delete handler: POST {prefix}/rm?path=<relative>
// unlinks a file or recursively removes a directory under the served root.
package remove

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/quickserve/quickserve/internal/apperror"
	"github.com/quickserve/quickserve/internal/config"
	"github.com/quickserve/quickserve/internal/pathutil"
)

// ErrorResponder renders a themed error page for a failed request, the same
// contract internal/auth and internal/upload use.
type ErrorResponder interface {
	RenderError(w http.ResponseWriter, r *http.Request, err *apperror.Error)
}

// Handler serves POST {prefix}/rm.
type Handler struct {
	Config    *config.Config
	Responder ErrorResponder
	Logger    *logrus.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.handle(r); err != nil {
		h.Responder.RenderError(w, r, err)
		return
	}
	redirectTo := r.Referer()
	if redirectTo == "" {
		redirectTo = "/"
	}
	http.Redirect(w, r, redirectTo, http.StatusSeeOther)
}

func (h *Handler) handle(r *http.Request) *apperror.Error {
	cfg := h.Config
	if !cfg.DeleteEnabled {
		return apperror.New(apperror.DeleteForbidden, "delete disabled")
	}

	reqPath, err := pathutil.Sanitize(r.URL.Query().Get("path"), cfg.HiddenVisible)
	if err != nil {
		return asAppError(err)
	}
	if reqPath == "" || reqPath == "." {
		return apperror.New(apperror.InvalidPath, "refusing to remove the served root")
	}

	if len(cfg.AllowedDeleteDirs) > 0 && !anyPrefixMatch(reqPath, cfg.AllowedDeleteDirs) {
		return apperror.New(apperror.DeleteForbidden, reqPath)
	}

	target := filepath.Join(cfg.ServedRoot, reqPath)
	if err := ensureUnderRoot(cfg.ServedRoot, target); err != nil {
		return err
	}
	if cfg.NoSymlinks {
		if err := rejectSymlinkAncestor(cfg.ServedRoot, target); err != nil {
			return err
		}
	}

	info, statErr := os.Lstat(target)
	if statErr != nil {
		return apperror.Wrap(apperror.IO, target, statErr)
	}

	if cfg.NoSymlinks && info.Mode()&os.ModeSymlink != 0 {
		return apperror.New(apperror.InsufficientPermissions, target)
	}

	if info.IsDir() {
		if err := os.RemoveAll(target); err != nil {
			return apperror.Wrap(apperror.IO, target, err)
		}
		return nil
	}

	if err := os.Remove(target); err != nil {
		return apperror.Wrap(apperror.IO, target, err)
	}
	return nil
}

func asAppError(err error) *apperror.Error {
	var ae *apperror.Error
	if apperror.As(err, &ae) {
		return ae
	}
	return apperror.Wrap(apperror.InvalidPath, "", err)
}

// ensureUnderRoot verifies target, once symlinks are resolved, still lies
// under root.
func ensureUnderRoot(root, target string) *apperror.Error {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		resolvedRoot = root
	}
	resolvedTarget, err := filepath.EvalSymlinks(target)
	if err != nil {
		resolvedTarget = target
	}
	rel, err := filepath.Rel(resolvedRoot, resolvedTarget)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return apperror.New(apperror.InsufficientPermissions, target)
	}
	return nil
}

// rejectSymlinkAncestor walks from root down to the parent of target,
// failing if any existing intermediate component is a symlink.
func rejectSymlinkAncestor(root, target string) *apperror.Error {
	rel, err := filepath.Rel(root, filepath.Dir(target))
	if err != nil {
		return apperror.New(apperror.InsufficientPermissions, target)
	}
	if rel == "." {
		return nil
	}
	cur := root
	for _, comp := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, comp)
		info, err := os.Lstat(cur)
		if err != nil {
			break
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return apperror.New(apperror.InsufficientPermissions, cur)
		}
	}
	return nil
}

func anyPrefixMatch(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if pathutil.HasPrefixDir(p, prefix) {
			return true
		}
	}
	return false
}
