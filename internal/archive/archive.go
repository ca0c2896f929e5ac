// Package archive streams tar, tar+gzip and zip archives of a directory
// subtree directly to an io.Writer, without staging the archive on disk.
package archive

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/quickserve/quickserve/internal/apperror"
)

// Method identifies an archive format.
type Method string

const (
	Tar   Method = "tar"
	TarGz Method = "tar_gz"
	Zip   Method = "zip"
)

// Ext returns the filename extension (without leading dot components
// collapsed, e.g. "tar.gz") used to build the Content-Disposition filename.
func (m Method) Ext() string {
	switch m {
	case Tar:
		return "tar"
	case TarGz:
		return "tar.gz"
	case Zip:
		return "zip"
	default:
		return "bin"
	}
}

// ContentType returns the MIME type advertised in the response.
func (m Method) ContentType() string {
	switch m {
	case Tar:
		return "application/x-tar"
	case TarGz:
		return "application/gzip"
	case Zip:
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}

// Streamer produces archive byte streams from a directory subtree.
type Streamer struct {
	// SkipSymlinks, when true, omits symlink entries entirely. When false,
	// symlinks are dereferenced and their target's content is included; a
	// broken symlink encountered this way produces a per-entry I/O error
	// that is logged and skipped — the archive is intentionally not
	// aborted, matching the upstream tool's long-standing behavior.
	SkipSymlinks bool
	Logger       *logrus.Logger
}

func (s *Streamer) logger() *logrus.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logrus.StandardLogger()
}

// Tar writes a USTAR/PAX tar stream of dir to w. The archive's top-level
// directory is dir's basename.
func (s *Streamer) Tar(w io.Writer, dir string) error {
	tw := tar.NewWriter(w)
	defer tw.Close()
	return s.walkInto(dir, func(relPath string, info fs.FileInfo, absPath string) error {
		return s.writeTarEntry(tw, relPath, info, absPath)
	})
}

// TarGz writes a gzip-compressed tar stream of dir to w.
func (s *Streamer) TarGz(w io.Writer, dir string) error {
	gw := gzip.NewWriter(w)
	defer gw.Close()
	tw := tar.NewWriter(gw)
	defer tw.Close()
	return s.walkInto(dir, func(relPath string, info fs.FileInfo, absPath string) error {
		return s.writeTarEntry(tw, relPath, info, absPath)
	})
}

// Zip writes a ZIP stream of dir to w using stored (uncompressed) entries,
// traversing the tree breadth-first with an explicit queue.
func (s *Streamer) Zip(w io.Writer, dir string) error {
	zw := zip.NewWriter(w)
	defer zw.Close()

	base := filepath.Base(dir)
	type queued struct {
		abs string
		rel string // slash-separated, relative to the archive root
	}
	queue := []queued{{abs: dir, rel: base}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		info, err := os.Lstat(cur.abs)
		if err != nil {
			s.logger().WithError(err).WithField("path", cur.abs).Warn("archive: stat failed, skipping")
			continue
		}

		if info.Mode()&os.ModeSymlink != 0 {
			if s.SkipSymlinks {
				continue
			}
			resolved, err := os.Stat(cur.abs)
			if err != nil {
				s.logger().WithError(err).WithField("path", cur.abs).Warn("archive: broken symlink, skipping entry")
				continue
			}
			info = resolved
		}

		if info.IsDir() {
			entries, err := os.ReadDir(cur.abs)
			if err != nil {
				s.logger().WithError(err).WithField("path", cur.abs).Warn("archive: readdir failed, skipping")
				continue
			}
			for _, e := range entries {
				queue = append(queue, queued{
					abs: filepath.Join(cur.abs, e.Name()),
					rel: cur.rel + "/" + e.Name(),
				})
			}
			if cur.rel != "" {
				hdr := &zip.FileHeader{Name: cur.rel + "/", Method: zip.Store}
				hdr.SetModTime(info.ModTime())
				if _, err := zw.CreateHeader(hdr); err != nil {
					return apperror.Wrap(apperror.ArchiveCreation, string(Zip), err)
				}
			}
			continue
		}

		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return apperror.Wrap(apperror.ArchiveCreation, string(Zip), err)
		}
		hdr.Name = cur.rel
		hdr.Method = zip.Store
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return apperror.Wrap(apperror.ArchiveCreation, string(Zip), err)
		}
		if err := copyFileInto(fw, cur.abs); err != nil {
			s.logger().WithError(err).WithField("path", cur.abs).Warn("archive: read failed mid-stream")
			continue
		}
	}
	return nil
}

// walkInto recursively visits dir depth-first, invoking visit for every
// non-skipped descendant with a slash-separated path rooted at dir's
// basename.
func (s *Streamer) walkInto(dir string, visit func(relPath string, info fs.FileInfo, absPath string) error) error {
	base := filepath.Base(dir)
	return s.walk(dir, base, visit)
}

func (s *Streamer) walk(abs, rel string, visit func(string, fs.FileInfo, string) error) error {
	info, err := os.Lstat(abs)
	if err != nil {
		s.logger().WithError(err).WithField("path", abs).Warn("archive: stat failed, skipping")
		return nil
	}

	if info.Mode()&os.ModeSymlink != 0 {
		if s.SkipSymlinks {
			return nil
		}
		resolved, err := os.Stat(abs)
		if err != nil {
			s.logger().WithError(err).WithField("path", abs).Warn("archive: broken symlink, skipping entry")
			return nil
		}
		info = resolved
	}

	if err := visit(rel, info, abs); err != nil {
		return err
	}

	if !info.IsDir() {
		return nil
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		s.logger().WithError(err).WithField("path", abs).Warn("archive: readdir failed, skipping")
		return nil
	}
	for _, e := range entries {
		if err := s.walk(filepath.Join(abs, e.Name()), rel+"/"+e.Name(), visit); err != nil {
			return err
		}
	}
	return nil
}

func (s *Streamer) writeTarEntry(tw *tar.Writer, relPath string, info fs.FileInfo, absPath string) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return apperror.Wrap(apperror.ArchiveCreation, string(Tar), err)
	}
	hdr.Name = relPath
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return apperror.Wrap(apperror.ArchiveCreation, string(Tar), err)
	}
	if info.IsDir() {
		return nil
	}
	if err := copyFileInto(tw, absPath); err != nil {
		s.logger().WithError(err).WithField("path", absPath).Warn("archive: read failed mid-stream")
	}
	return nil
}

func copyFileInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// ArchiveFilename builds the Content-Disposition filename for the given
// directory and method, e.g. "sub.tar.gz".
func ArchiveFilename(dir string, method Method) string {
	base := filepath.Base(dir)
	if base == "." || base == "/" || base == "" {
		base = "archive"
	}
	return fmt.Sprintf("%s.%s", base, method.Ext())
}
