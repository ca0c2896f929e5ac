package archive

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/quickserve/quickserve/internal/apperror"
)

// Download writes a streaming archive response for absDir using method,
// setting Content-Type, Content-Disposition and chunked transfer encoding.
// A failure partway through the write ends the response; per spec this is
// intentional and the partial body is observable to the caller.
func Download(w http.ResponseWriter, absDir string, method Method, skipSymlinks bool, logger *logrus.Logger) error {
	filename := ArchiveFilename(absDir, method)
	w.Header().Set("Content-Type", method.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	w.Header().Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)

	s := &Streamer{SkipSymlinks: skipSymlinks, Logger: logger}
	var err error
	switch method {
	case Tar:
		err = s.Tar(w, absDir)
	case TarGz:
		err = s.TarGz(w, absDir)
	case Zip:
		err = s.Zip(w, absDir)
	default:
		return apperror.New(apperror.ArchiveCreation, string(method))
	}
	if err != nil {
		return apperror.Wrap(apperror.ArchiveCreation, string(method), err)
	}
	return nil
}

// ParseMethod validates a ?download= query value.
func ParseMethod(s string) (Method, bool) {
	switch Method(s) {
	case Tar, TarGz, Zip:
		return Method(s), true
	default:
		return "", false
	}
}
