package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath = errors.New("path escapes storage root")
)

// Local is the on-disk download tree. All paths handed to it are relative
// to its root and use forward slashes.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	err = os.MkdirAll(abs, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Local{root: abs}, nil
}

func (l *Local) Root() string {
	return l.root
}

// Path resolves rel inside the root.
func (l *Local) Path(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return filepath.Join(l.root, clean), nil
}

// Rel converts an absolute path under the root back to a slash path.
func (l *Local) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(l.root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return filepath.ToSlash(rel), nil
}

func (l *Local) MkdirAll(rel string) error {
	p, err := l.Path(rel)
	if err != nil {
		return err
	}
	return os.MkdirAll(p, 0755)
}

// Exists reports whether rel names a regular file.
func (l *Local) Exists(rel string) bool {
	p, err := l.Path(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes a file. A file that is already gone is not an error.
func (l *Local) Remove(rel string) error {
	p, err := l.Path(rel)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveDirIfEmpty deletes a directory when it has no entries left.
// Missing and non-empty directories are left alone.
func (l *Local) RemoveDirIfEmpty(rel string) error {
	p, err := l.Path(rel)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return nil
	}

	err = os.Remove(p)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Local) Open(rel string) (*os.File, error) {
	p, err := l.Path(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}
