// Package upload implements the multipart upload and mkdir handler: POST
// {prefix}/upload?path=<relative> with a multipart/form-data body whose
// parts are either a "mkdir" text field or a "file" file field.
package upload

import (
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/quickserve/quickserve/internal/apperror"
	"github.com/quickserve/quickserve/internal/config"
	"github.com/quickserve/quickserve/internal/pathutil"
)

// ErrorResponder renders a themed error page for a failed request, the
// same contract internal/auth uses, so every package reports failures
// through one rendering implementation (internal/render.Renderer).
type ErrorResponder interface {
	RenderError(w http.ResponseWriter, r *http.Request, err *apperror.Error)
}

// Handler serves POST {prefix}/upload.
type Handler struct {
	Config     *config.Config
	Responder  ErrorResponder
	Logger     *logrus.Logger
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

	reqPath, err := pathutil.Sanitize(r.URL.Query().Get("path"), cfg.HiddenVisible)
	if err != nil {
		return asAppError(err)
	}

	if len(cfg.AllowedUploadDirs) > 0 && !anyPrefixMatch(reqPath, cfg.AllowedUploadDirs) {
		return apperror.New(apperror.UploadForbidden, reqPath)
	}

	absTargetDir := filepath.Join(cfg.ServedRoot, reqPath)

	reader, err := r.MultipartReader()
	if err != nil {
		return apperror.Wrap(apperror.MultipartParse, "", err)
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return apperror.Wrap(apperror.MultipartParse, "", err)
		}

		switch {
		case part.FormName() == "mkdir":
			if aerr := h.handleMkdir(part, reqPath, absTargetDir); aerr != nil {
				part.Close()
				return aerr
			}
		case part.FileName() != "":
			if aerr := h.handleFile(part, reqPath, absTargetDir); aerr != nil {
				part.Close()
				return aerr
			}
		}
		part.Close()
	}
	return nil
}

func (h *Handler) handleMkdir(part *multipart.Part, reqPath, absTargetDir string) *apperror.Error {
	cfg := h.Config
	if !cfg.MkdirEnabled {
		return apperror.New(apperror.UploadForbidden, "mkdir disabled")
	}

	data, err := io.ReadAll(io.LimitReader(part, 4096))
	if err != nil {
		return apperror.Wrap(apperror.MultipartParse, "mkdir", err)
	}
	rel := strings.TrimSpace(string(data))
	if rel == "" {
		return apperror.New(apperror.InvalidPath, "empty mkdir target")
	}

	for _, comp := range strings.Split(strings.ReplaceAll(rel, "\\", "/"), "/") {
		if comp == ".." {
			return apperror.New(apperror.InvalidPath, rel)
		}
		if !cfg.HiddenVisible && strings.HasPrefix(comp, ".") {
			return apperror.New(apperror.InvalidPath, rel)
		}
	}

	sanitizedRel, err := pathutil.Sanitize(rel, cfg.HiddenVisible)
	if err != nil {
		return asAppError(err)
	}

	target := filepath.Join(absTargetDir, sanitizedRel)
	if err := ensureUnderRoot(cfg.ServedRoot, target); err != nil {
		return err
	}

	if cfg.NoSymlinks {
		if err := rejectSymlinkAncestor(cfg.ServedRoot, target); err != nil {
			return err
		}
	}

	info, statErr := os.Stat(target)
	if statErr == nil {
		if !info.IsDir() {
			return apperror.New(apperror.InvalidPath, "target exists and is not a directory")
		}
		return nil // idempotent: existing directory is accepted
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return apperror.Wrap(apperror.IO, target, err)
	}
	return nil
}

func (h *Handler) handleFile(part *multipart.Part, reqPath, absTargetDir string) *apperror.Error {
	cfg := h.Config
	if !cfg.UploadEnabled {
		return apperror.New(apperror.UploadForbidden, "file upload disabled")
	}

	baseName, err := pathutil.Sanitize(filepath.Base(part.FileName()), cfg.HiddenVisible)
	if err != nil {
		return asAppError(err)
	}
	if baseName == "" || baseName == "." {
		return apperror.New(apperror.InvalidPath, "empty filename")
	}

	target := filepath.Join(absTargetDir, baseName)
	if err := ensureUnderRoot(cfg.ServedRoot, target); err != nil {
		return err
	}
	if cfg.NoSymlinks {
		if err := rejectSymlinkAncestor(cfg.ServedRoot, target); err != nil {
			return err
		}
	}

	if !cfg.Overwrite {
		if _, err := os.Stat(target); err == nil {
			return apperror.New(apperror.DuplicateFile, baseName)
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return apperror.Wrap(apperror.IO, target, err)
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return apperror.Wrap(apperror.IO, target, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, part); err != nil {
		// Partial file may remain on disk; this is documented, not
		// silently cleaned up, so the failure is observable.
		if h.Logger != nil {
			h.Logger.WithError(err).WithField("path", target).Warn("upload: write failed mid-stream")
		}
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
// under root. Only target's parent directory is resolved, since the final
// component (the file being created) need not exist yet; if the parent does
// not exist either, it is compared unresolved.
func ensureUnderRoot(root, target string) *apperror.Error {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		resolvedRoot = root
	}
	dir := filepath.Dir(target)
	resolvedDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		resolvedDir = dir
	}
	rel, err := filepath.Rel(resolvedRoot, resolvedDir)
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
			break // doesn't exist yet; nothing further to check
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
