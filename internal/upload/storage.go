// Package upload stores product images on the local filesystem.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrUnsupportedType = errors.New("only jpeg, jpg, png, gif and webp images are allowed")
	ErrTooLarge        = errors.New("image exceeds the upload size limit")
)

var allowedExtensions = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

var allowedMIME = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Storage writes images into dir and hands out paths under prefix, e.g.
// "/uploads/1700000000000-1a2b3c4d.png".
type Storage struct {
	dir      string
	prefix   string
	maxBytes int64
	now      func() time.Time
}

func NewStorage(dir, prefix string, maxBytes int64) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Storage{
		dir:      dir,
		prefix:   strings.TrimRight(prefix, "/"),
		maxBytes: maxBytes,
		now:      time.Now,
	}, nil
}

func (s *Storage) Dir() string    { return s.dir }
func (s *Storage) Prefix() string { return s.prefix }

// Save validates the image by extension and sniffed content, writes it and
// returns the public path.
func (s *Storage) Save(originalName string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedExtensions[ext] {
		return "", ErrUnsupportedType
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if n > s.maxBytes {
		return "", ErrTooLarge
	}

	if !isAllowedMIME(buf.Bytes()) {
		return "", ErrUnsupportedType
	}

	name := fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), uuid.New().String()[:8], ext)
	if err := os.WriteFile(filepath.Join(s.dir, name), buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return s.prefix + "/" + name, nil
}

func isAllowedMIME(data []byte) bool {
	detected := mimetype.Detect(data)
	for _, m := range allowedMIME {
		if detected.Is(m) {
			return true
		}
	}
	return false
}

// IsLocal reports whether path was produced by Save rather than being an
// external URL.
func (s *Storage) IsLocal(path string) bool {
	name, ok := s.fileName(path)
	return ok && name != ""
}

// Remove deletes a locally stored image. External URLs and files that are
// already gone are ignored; the result says whether a file was deleted.
func (s *Storage) Remove(path string) (bool, error) {
	name, ok := s.fileName(path)
	if !ok {
		return false, nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to remove image %s: %w", name, err)
	}
	return true, nil
}

func (s *Storage) fileName(path string) (string, bool) {
	if !strings.HasPrefix(path, s.prefix+"/") {
		return "", false
	}
	name := strings.TrimPrefix(path, s.prefix+"/")
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", false
	}
	return name, true
}
