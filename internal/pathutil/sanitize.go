// Package pathutil implements the path-safety rules shared by every
// mutating and browsing handler: normalizing an untrusted, possibly
// percent-encoded request path into a relative, traversal-free path.
package pathutil

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/quickserve/quickserve/internal/apperror"
)

// Sanitize normalizes an arbitrary request-supplied path into a relative,
// traversal-free path. Root markers, current-dir markers and drive prefixes
// are dropped; parent-dir markers pop the last accumulated component instead
// of being preserved, so the result can never climb above the accumulated
// prefix. When allowHidden is false, any component beginning with "." is
// rejected after normalization.
func Sanitize(requested string, allowHidden bool) (string, error) {
	if !utf8.ValidString(requested) {
		return "", apperror.New(apperror.InvalidPath, "not valid UTF-8")
	}

	// Normalize Windows-style separators so a client behind an
	// OS-agnostic proxy can't smuggle traversal using backslashes.
	requested = strings.ReplaceAll(requested, "\\", "/")

	var out []string
	for _, comp := range strings.Split(requested, "/") {
		switch comp {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			if strings.Contains(comp, ":") && looksLikeDrivePrefix(comp) {
				continue
			}
			out = append(out, comp)
		}
	}

	if !allowHidden {
		for _, comp := range out {
			if strings.HasPrefix(comp, ".") {
				return "", apperror.New(apperror.InvalidPath, "hidden component not allowed")
			}
		}
	}

	return path.Join(out...), nil
}

// looksLikeDrivePrefix reports whether comp looks like a Windows drive
// prefix such as "C:", which carries no meaning under a served root and is
// dropped rather than treated as a literal directory name.
func looksLikeDrivePrefix(comp string) bool {
	return len(comp) == 2 && comp[1] == ':' && isASCIILetter(comp[0])
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// HasHiddenComponent reports whether any slash-separated component of p
// begins with ".". p is assumed already sanitized (relative, normalized).
func HasHiddenComponent(p string) bool {
	for _, comp := range strings.Split(p, "/") {
		if strings.HasPrefix(comp, ".") {
			return true
		}
	}
	return false
}

// HasPrefixDir reports whether sanitized path p is equal to, or nested
// under, sanitized directory prefix. Both must already be slash-normalized,
// relative paths as produced by Sanitize.
func HasPrefixDir(p, prefix string) bool {
	prefix = strings.Trim(prefix, "/")
	p = strings.Trim(p, "/")
	if prefix == "" || prefix == "." {
		return true
	}
	if p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+"/")
}

// RejectSymlinkInPath walks from root down to target, refusing the request
// if target itself or any existing intermediate component is a symlink.
// Unlike the upload/remove handlers' ancestor-only check, a browsing or
// download request's terminal component is itself the access being gated,
// not just the parent directory of a write target, so it must be checked
// too.
func RejectSymlinkInPath(root, target string) error {
	rel, err := filepath.Rel(root, target)
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
			break // doesn't exist; nothing further to check
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return apperror.New(apperror.InsufficientPermissions, cur)
		}
	}
	return nil
}
