// Package filehandler validates and inspects local image files for the
// compression pipeline: existence and format checks, MIME typing, pixel
// dimensions, capture metadata, and atomic output writes.
package filehandler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// SupportedExtensions maps the accepted source file extensions to the MIME
// type sent as the upload Content-Type. Extensions are matched case-insensitively.
var SupportedExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// Sentinel errors returned (wrapped) by Load. Callers classify with errors.Is.
var (
	ErrNotFound    = errors.New("file not found")
	ErrIsDirectory = errors.New("path is a directory")
	ErrUnsupported = errors.New("unsupported image format")
)

// Source describes a validated local image file.
type Source struct {
	// Path is the absolute path to the file.
	Path string
	// Ext is the original extension as supplied, including the dot.
	Ext string
	// MIMEType is the upload Content-Type for the file.
	MIMEType string
	// Size is the file size in bytes.
	Size int64
	// Mode carries the source permission bits, applied to outputs.
	Mode os.FileMode
}

// IsSupported reports whether ext (with or without leading dot) is an
// accepted image extension.
func IsSupported(ext string) bool {
	_, ok := SupportedExtensions[normalizeExt(ext)]
	return ok
}

// MIMEType returns the Content-Type for ext, or "" if unsupported.
func MIMEType(ext string) string {
	return SupportedExtensions[normalizeExt(ext)]
}

func normalizeExt(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ToLower(ext)
}

// Load validates the file at path and returns its Source description.
// It checks, in order: existence, regular-file-ness, and extension support.
// No file contents are read.
func Load(path string) (*Source, error) {
	log.Debug().Str("path", path).Msg("Validating source file")

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}

	ext := filepath.Ext(path)
	mimeType, ok := SupportedExtensions[strings.ToLower(ext)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: png, jpg, jpeg)", ErrUnsupported, ext)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	return &Source{
		Path:     abs,
		Ext:      ext,
		MIMEType: mimeType,
		Size:     info.Size(),
		Mode:     info.Mode().Perm(),
	}, nil
}
