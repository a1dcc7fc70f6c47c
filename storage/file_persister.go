package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FilePersister writes files such as screenshots. It abstracts away where
// and how they are stored.
type FilePersister interface {
	Persist(ctx context.Context, path string, data io.Reader) error
}

// LocalFilePersister writes files to the local disk. Relative paths are
// resolved against BaseDir, or the working directory when it's empty.
type LocalFilePersister struct {
	BaseDir string
}

// Persist writes data to path, creating its parent directories. The file
// is replaced atomically: readers see either the previous content or all
// of data.
func (l *LocalFilePersister) Persist(ctx context.Context, path string, data io.Reader) (err error) {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("persisting %q: %w", path, err)
	}

	cp := filepath.Clean(path)
	if !filepath.IsAbs(cp) && l.BaseDir != "" {
		cp = filepath.Join(l.BaseDir, cp)
	}

	dir := filepath.Dir(cp)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating a local directory %q: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(cp)+".*")
	if err != nil {
		return fmt.Errorf("creating a local file in %q: %w", dir, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if _, err = io.Copy(f, data); err != nil {
		return fmt.Errorf("writing %q: %w", cp, err)
	}
	if err = f.Chmod(0o600); err != nil {
		return fmt.Errorf("writing %q: %w", cp, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("closing the local file %q: %w", cp, err)
	}
	if err = os.Rename(f.Name(), cp); err != nil {
		return fmt.Errorf("renaming to %q: %w", cp, err)
	}

	return nil
}
