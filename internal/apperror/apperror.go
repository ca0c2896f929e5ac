// Package apperror defines the single error type that crosses handler
// boundaries, so every failure maps to an HTTP status (StatusFor) and a
// themed page rendered in one place (render.Renderer.RenderError) without
// each handler rendering its own.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for status-code mapping and logging.
type Kind int

const (
	Unknown Kind = iota
	InvalidPath
	InsufficientPermissions
	DuplicateFile
	UploadForbidden
	DeleteForbidden
	MultipartParse
	IO
	ArchiveCreation
	InvalidHTTPCredentials
	InvalidAuthFormat
	InvalidHashMethod
	InvalidPasswordHash
	PasswordTooLong
	ParseError
	RouteNotFound
	NoExplicitPathAndNoTerminal
	NoSymlinksOptionWithSymlinkServePath
)

// Error is the error type returned by every handler and config-loading
// function in this module.
type Error struct {
	Kind    Kind
	Subject string // e.g. the archive kind, the parse subject, the missing route
	cause   error
}

func (e *Error) Error() string {
	msg := kindMessages[e.Kind]
	if msg == "" {
		msg = "unexpected error"
	}
	if e.Subject != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Subject)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

var kindMessages = map[Kind]string{
	InvalidPath:                           "invalid path",
	InsufficientPermissions:               "insufficient permissions",
	DuplicateFile:                         "file already exists",
	UploadForbidden:                       "upload forbidden",
	DeleteForbidden:                       "delete forbidden",
	MultipartParse:                        "failed to parse multipart body",
	IO:                                    "I/O error",
	ArchiveCreation:                       "failed to create archive",
	InvalidHTTPCredentials:                "invalid credentials",
	InvalidAuthFormat:                     "invalid auth string format",
	InvalidHashMethod:                     "invalid hash method",
	InvalidPasswordHash:                   "invalid password hash",
	PasswordTooLong:                       "password too long",
	ParseError:                            "parse error",
	RouteNotFound:                         "route not found",
	NoExplicitPathAndNoTerminal:           "no explicit path given and not running in a terminal",
	NoSymlinksOptionWithSymlinkServePath:  "serve path is a symlink but --no-symlinks was given",
}

// New constructs an Error of the given kind with an optional subject.
func New(kind Kind, subject string) *Error {
	return &Error{Kind: kind, Subject: subject}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, subject string, cause error) *Error {
	return &Error{Kind: kind, Subject: subject, cause: cause}
}

// StatusFor maps a Kind to the HTTP status an error response carries.
func StatusFor(kind Kind) int {
	switch kind {
	case InvalidPath:
		return http.StatusBadRequest
	case InsufficientPermissions, UploadForbidden, DeleteForbidden:
		return http.StatusForbidden
	case DuplicateFile:
		return http.StatusConflict
	case InvalidHTTPCredentials:
		return http.StatusUnauthorized
	case RouteNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// As is a thin re-export of errors.As so callers don't need to import both
// packages to pull a *Error out of an error chain.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}
