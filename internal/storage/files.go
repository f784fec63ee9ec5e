// Package storage keeps reimbursement attachments on the local disk.
//
// Files are stored under generated names (a UUID plus an extension derived
// from the sniffed content type), never under the client's file name, so a
// crafted name can't escape the upload directory or overwrite another file.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrTooLarge        = errors.New("storage: file too large")
	ErrUnsupportedType = errors.New("storage: unsupported file type")
	ErrEmpty           = errors.New("storage: empty file")
	ErrInvalidName     = errors.New("storage: invalid file name")
)

// DefaultAllowedTypes are the invoice formats we accept.
var DefaultAllowedTypes = []string{
	"application/pdf",
	"image/png",
	"image/jpeg",
	"image/webp",
	"image/gif",
	"image/heic",
}

// Object describes a stored file.
type Object struct {
	Name     string
	Size     int64
	MimeType string
}

// Store saves files in a single directory.
type Store struct {
	dir      string
	maxBytes int64
	allowed  []string
}

// New creates the directory if needed.
func New(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", dir, err)
	}
	return &Store{
		dir:      dir,
		maxBytes: maxBytes,
		allowed:  DefaultAllowedTypes,
	}, nil
}

// MaxBytes returns the size limit for a single file.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Save copies src into the store. The content type is detected from the
// bytes, not from the client's Content-Type header.
func (s *Store) Save(src io.Reader) (*Object, error) {
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("storage: creating temp file: %w", err)
	}
	defer func() {
		// No-op once the file has been renamed.
		_ = os.Remove(tmp.Name())
	}()

	// Read one byte past the limit so we can tell "exactly max" from "over".
	n, err := io.Copy(tmp, io.LimitReader(src, s.maxBytes+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("storage: writing upload: %w", err)
	}
	if n == 0 {
		return nil, ErrEmpty
	}
	if n > s.maxBytes {
		return nil, ErrTooLarge
	}

	mt, err := mimetype.DetectFile(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("storage: detecting type: %w", err)
	}
	if !s.typeAllowed(mt) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}

	name := uuid.NewString() + mt.Extension()
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return nil, fmt.Errorf("storage: storing upload: %w", err)
	}

	return &Object{Name: name, Size: n, MimeType: mt.String()}, nil
}

// Open returns the stored file for reading.
func (s *Store) Open(name string) (*os.File, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("storage: opening %s: %w", name, err)
	}
	return f, nil
}

// Remove deletes a stored file. A missing file is not an error.
func (s *Store) Remove(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: removing %s: %w", name, err)
	}
	return nil
}

func (s *Store) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, name), nil
}

func (s *Store) typeAllowed(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if slices.Contains(s.allowed, m.String()) {
			return true
		}
	}
	return false
}
