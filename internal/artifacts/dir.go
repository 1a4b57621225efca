package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// DirStore keeps artifacts as files in a single directory.
type DirStore struct {
	root string
}

// NewDirStore creates root if needed.
func NewDirStore(root string) (*DirStore, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact directory must be provided")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &DirStore{root: root}, nil
}

// Root returns the backing directory.
func (s *DirStore) Root() string {
	return s.root
}

// Save writes data to a temporary file, syncs it and links it into place.
// An existing artifact with the same name is kept and the write is skipped.
func (s *DirStore) Save(ctx context.Context, name string, data []byte, _ string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync artifact %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact %s: %w", name, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod artifact %s: %w", name, err)
	}
	err = os.Link(tmpPath, filepath.Join(s.root, name))
	if errors.Is(err, fs.ErrExist) {
		slog.Info("Artifact already exists; skipping write.", "artifact", name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("publish artifact %s: %w", name, err)
	}
	return nil
}

// Open returns a reader for name or ErrNotFound.
func (s *DirStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", name, err)
	}
	return f, nil
}
