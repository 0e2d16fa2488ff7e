// Package storage is the document storage collaborator: it stores uploaded
// source files under a stable file key and hands their bytes back to the
// ingestion pipeline.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("document not found")
	ErrInvalidFileKey = errors.New("invalid file key")
)

const keyPrefix = "uploads/"

// LocalStore keeps documents on the local filesystem under root.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(root, keyPrefix), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir failed: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Store writes data under a fresh key of the form uploads/<uuid>-<name>.
func (s *LocalStore) Store(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := keyPrefix + uuid.NewString() + "-" + sanitizeName(name)
	target, err := s.resolve(key)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file failed: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write document failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close document failed: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("commit document failed: %w", err)
	}
	return key, nil
}

func (s *LocalStore) Fetch(ctx context.Context, fileKey string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := s.resolve(fileKey)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read document failed: %w", err)
	}
	return data, nil
}

// Delete removes a stored document. Deleting a missing key is not an error.
func (s *LocalStore) Delete(ctx context.Context, fileKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.resolve(fileKey)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}

// resolve maps a file key to a path inside root and refuses anything that
// would escape it.
func (s *LocalStore) resolve(fileKey string) (string, error) {
	clean := path.Clean(fileKey)
	if fileKey == "" || clean != fileKey || !strings.HasPrefix(clean, keyPrefix) {
		return "", ErrInvalidFileKey
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// sanitizeName keeps the original file name readable in the key while
// dropping path separators.
func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r < 0x20:
			return -1
		case r == ' ':
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "document.pdf"
	}
	return name
}
