package tinyimg

import (
	"errors"
	"net/http"

	"github.com/fpang/tinyimg/internal/tinypng"
)

// ErrorKind categorizes failures surfaced by the library.
type ErrorKind int

const (
	// KindValidation indicates an invalid option value or combination.
	KindValidation ErrorKind = iota
	// KindNotFound indicates the source file does not exist or is a directory.
	KindNotFound
	// KindUnsupportedFormat indicates a file extension outside png/jpg/jpeg.
	KindUnsupportedFormat
	// KindMissingCredential indicates no API key was found anywhere.
	KindMissingCredential
	// KindInvalidCredential indicates the API key is structurally unusable.
	KindInvalidCredential
	// KindAuthentication indicates the service rejected the credentials.
	KindAuthentication
	// KindRemote indicates any other remote interaction failure.
	KindRemote
)

// String returns the kind's name for logging.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnsupportedFormat:
		return "unsupported_format"
	case KindMissingCredential:
		return "missing_credential"
	case KindInvalidCredential:
		return "invalid_credential"
	case KindAuthentication:
		return "authentication"
	case KindRemote:
		return "remote"
	}
	return "unknown"
}

// Error is the typed error returned by library operations, carrying the
// failure category alongside the message and wrapped cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind when err is (or wraps) a library Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// classifyUpload maps a compress-upload failure to the error taxonomy.
// HTTP 401 on the upload means bad credentials; everything else is a
// remote failure.
func classifyUpload(err error) *Error {
	var apiErr *tinypng.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusUnauthorized {
			return wrapError(KindAuthentication, "compression service rejected the API key", err)
		}
		return wrapError(KindRemote, "compression request failed", err)
	}
	return wrapError(KindRemote, "compression request failed", err)
}

// classifyRemote maps resize and download failures. These are remote
// failures regardless of status code.
func classifyRemote(message string, err error) *Error {
	return wrapError(KindRemote, message, err)
}
