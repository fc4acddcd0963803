// Package capture normalizes captured receipt files into analyzable images.
// Whatever the user throws at it (iPhone HEIC, PDF statements, JPEG photos),
// analysis always receives PNG bytes.
package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Image is a normalized captured image, ready for analysis.
type Image struct {
	SourcePath  string
	ContentType string
	Data        []byte
}

// Loader reads capture files from disk and normalizes them.
type Loader struct {
	maxBytes int64
}

// DefaultMaxBytes bounds the size of a single capture file. Receipts far
// above this are misconfigured captures, not receipts.
const DefaultMaxBytes = 20 << 20

// Option configures a Loader.
type Option func(*Loader)

// WithMaxBytes replaces the per-file size bound.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) { l.maxBytes = n }
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{maxBytes: DefaultMaxBytes}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads a capture file and converts it to PNG.
func (l *Loader) Load(path string) (Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Image{}, fmt.Errorf("failed to stat capture file: %w", err)
	}
	if info.Size() > l.maxBytes {
		return Image{}, fmt.Errorf("capture file %s is %d bytes, above the %d byte limit", path, info.Size(), l.maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("failed to read capture file: %w", err)
	}

	contentType := SniffContentType(data, path)
	pngData, err := toPNG(data, contentType)
	if err != nil {
		return Image{}, fmt.Errorf("failed to normalize %s: %w", path, err)
	}

	return Image{
		SourcePath:  path,
		ContentType: "image/png",
		Data:        pngData,
	}, nil
}

// SniffContentType determines a capture file's type from magic bytes, falling
// back to the file extension.
func SniffContentType(data []byte, path string) string {
	switch {
	case isPDF(data):
		return "application/pdf"
	case isPNG(data):
		return "image/png"
	case isJPEG(data):
		return "image/jpeg"
	case isHEIC(data):
		return "image/heic"
	case isGIF(data):
		return "image/gif"
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".heic", ".heif":
		return "image/heic"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

// IsSupported reports whether a file extension looks like something Load can
// handle. Used for early argument validation; Load remains the authority.
func IsSupported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".png", ".jpg", ".jpeg", ".heic", ".heif", ".gif":
		return true
	default:
		return false
	}
}
