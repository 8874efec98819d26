// Package storage saves uploaded images on the local filesystem.
package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrUnsupportedType is returned for uploads that are not png or jpeg.
var ErrUnsupportedType = errors.New("storage: unsupported file type")

// ErrTooLarge is returned for uploads over the configured size limit.
var ErrTooLarge = errors.New("storage: file too large")

// Content sniffing decides, not the client-supplied Content-Type.
var allowedTypes = []string{"image/png", "image/jpeg"}

// Local stores images under a single directory served at urlPrefix.
type Local struct {
	dir       string
	urlPrefix string
	maxSize   int64
}

// NewLocal creates the directory if needed and returns the store.
func NewLocal(dir, urlPrefix string, maxSize int64) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Local{dir: dir, urlPrefix: urlPrefix, maxSize: maxSize}, nil
}

// Dir returns the directory images are stored in.
func (l *Local) Dir() string { return l.dir }

// SaveImage validates and stores one uploaded image, returning the URL
// path it will be served under.
func (l *Local) SaveImage(file *multipart.FileHeader) (string, error) {
	if l.maxSize > 0 && file.Size > l.maxSize {
		return "", ErrTooLarge
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return "", fmt.Errorf("failed to sniff upload: %w", err)
	}
	if !mimetype.EqualsAny(mtype.String(), allowedTypes...) {
		return "", ErrUnsupportedType
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind upload: %w", err)
	}

	name := uuid.New().String() + mtype.Extension()
	path := filepath.Join(l.dir, name)

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write image file: %w", err)
	}

	return l.urlPrefix + "/" + name, nil
}
