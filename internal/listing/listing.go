// Package listing builds the sorted, filtered Entry list for a directory,
// independent of how it's eventually rendered (HTML page or archive).
package listing

import (
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/quickserve/quickserve/internal/apperror"
	"github.com/quickserve/quickserve/internal/config"
	"github.com/quickserve/quickserve/internal/model"
)

// Query carries the request's listing-affecting parameters.
type Query struct {
	Sort     config.SortMethod
	Order    config.SortOrder
	Raw      bool
	Download string // "", "tar", "tar_gz", "zip"
	Theme    string
}

// Result is everything the renderer needs to produce a listing page.
type Result struct {
	Entries     []model.Entry
	Breadcrumbs []model.Breadcrumb
	HasParent   bool
	Readme      *ReadmeContent
	Sort        config.SortMethod
	Order       config.SortOrder
}

// ReadmeContent is the (bounded) contents of a discovered README file.
type ReadmeContent struct {
	Name string
	Body string
}

const maxReadmeBytes = 1 << 20 // 1 MiB

var readmeExts = []string{".md", ".txt", ""}

// Build reads absDir, applies the configured hidden/symlink filters and the
// requested sort, and returns the resulting listing. webPath is the
// sanitized, slash-separated path of absDir relative to the served root
// (used to compute breadcrumbs and entry links); it is "" for the root.
func Build(absDir, webPath string, cfg *config.Config, q Query) (*Result, error) {
	if cfg.DisableIndexing {
		return nil, apperror.New(apperror.RouteNotFound, webPath)
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil, apperror.Wrap(apperror.IO, absDir, err)
	}

	sortMethod := q.Sort
	if sortMethod == "" {
		sortMethod = cfg.DefaultSort
	}
	order := q.Order
	if order == "" {
		order = cfg.DefaultOrder
	}

	var out []model.Entry
	var readme *ReadmeContent
	for _, de := range entries {
		name := de.Name()
		if !cfg.HiddenVisible && strings.HasPrefix(name, ".") {
			continue
		}

		info, err := de.Info()
		if err != nil {
			continue // vanished between readdir and stat; skip silently
		}

		kind := model.File
		var symlinkTarget *string
		if info.Mode()&os.ModeSymlink != 0 {
			if cfg.NoSymlinks {
				continue
			}
			kind = model.Symlink
			if target, err := os.Readlink(filepath.Join(absDir, name)); err == nil {
				symlinkTarget = &target
			}
			// Use the resolved target's info when available so size/mtime
			// reflect the real file, same as a followed symlink would.
			if resolved, err := os.Stat(filepath.Join(absDir, name)); err == nil {
				info = resolved
			}
		} else if de.IsDir() {
			kind = model.Directory
		}

		entry := model.Entry{
			Name: name,
			Kind: kind,
			Link: entryLink(name, kind == model.Directory || (kind == model.Symlink && info.IsDir())),
		}
		if kind != model.Directory && !(kind == model.Symlink && info.IsDir()) {
			size := info.Size()
			entry.Size = &size
		}
		mtime := info.ModTime()
		entry.ModTime = &mtime
		entry.SymlinkTarget = symlinkTarget

		out = append(out, entry)

		if cfg.ShowReadme && readme == nil && isReadmeName(name) {
			if body, ok := readReadme(filepath.Join(absDir, name)); ok {
				readme = &ReadmeContent{Name: name, Body: body}
			}
		}
	}

	sortEntries(out, sortMethod, order, cfg.DirsFirst)

	return &Result{
		Entries:     out,
		Breadcrumbs: buildBreadcrumbs(webPath),
		HasParent:   webPath != "" && webPath != ".",
		Readme:      readme,
		Sort:        sortMethod,
		Order:       order,
	}, nil
}

func entryLink(name string, isDir bool) string {
	link := url.PathEscape(name)
	// PathEscape escapes "/" which can't occur in a basename, but it also
	// escapes some characters browsers handle fine unescaped; leave as-is,
	// it round-trips correctly either way.
	if isDir {
		link += "/"
	}
	return link
}

func isReadmeName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range readmeExts {
		if lower == "readme"+ext {
			return true
		}
	}
	return false
}

func readReadme(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.Size() > maxReadmeBytes {
		return "", false
	}
	buf, err := io.ReadAll(f)
	if err != nil {
		return "", false
	}
	return string(buf), true
}

// buildBreadcrumbs splits webPath (the sanitized request path, relative to
// the served root) on "/" and returns the root-to-current trail. Every link
// is relative to the directory being rendered, matching the entry links
// the same page emits; the final element is the sentinel "." per spec.
func buildBreadcrumbs(webPath string) []model.Breadcrumb {
	webPath = strings.Trim(webPath, "/")
	if webPath == "" || webPath == "." {
		return []model.Breadcrumb{{Name: "/", Link: "."}}
	}

	parts := strings.Split(webPath, "/")
	crumbs := make([]model.Breadcrumb, 0, len(parts)+1)
	crumbs = append(crumbs, model.Breadcrumb{Name: "/", Link: strings.Repeat("../", len(parts))})
	for i, p := range parts {
		if i == len(parts)-1 {
			crumbs = append(crumbs, model.Breadcrumb{Name: p, Link: "."})
		} else {
			crumbs = append(crumbs, model.Breadcrumb{Name: p, Link: strings.Repeat("../", len(parts)-1-i)})
		}
	}
	return crumbs
}

func sortEntries(entries []model.Entry, method config.SortMethod, order config.SortOrder, dirsFirst bool) {
	less := func(i, j int) bool {
		a, b := entries[i], entries[j]
		if dirsFirst && a.IsDir() != b.IsDir() {
			return a.IsDir()
		}
		var lt bool
		switch method {
		case config.SortBySize:
			lt = sizeOf(a) < sizeOf(b)
			if sizeOf(a) == sizeOf(b) {
				return naturalLess(a.Name, b.Name)
			}
		case config.SortByDate:
			ta, tb := timeOf(a), timeOf(b)
			lt = ta.Before(tb)
			if ta.Equal(tb) {
				return naturalLess(a.Name, b.Name)
			}
		default:
			return orderAdjust(naturalLess(a.Name, b.Name), order)
		}
		return orderAdjust(lt, order)
	}
	sort.SliceStable(entries, less)
}

func orderAdjust(lt bool, order config.SortOrder) bool {
	if order == config.OrderDesc {
		return !lt
	}
	return lt
}

func sizeOf(e model.Entry) int64 {
	if e.Size == nil {
		return 0
	}
	return *e.Size
}

func timeOf(e model.Entry) time.Time {
	if e.ModTime == nil {
		return time.Time{}
	}
	return *e.ModTime
}
