package storage

import (
	"fmt"
	"os"
)

const userDataDirPattern = "downstage-data-*"

// Dir manages a browser user data directory.
type Dir struct {
	Dir string

	// remove is true when Make created Dir and Cleanup should delete it.
	remove bool
}

// Make sets Dir to dir, or creates a temporary directory under tmpDir
// when dir is empty. An empty tmpDir uses the OS default. Only directories
// created by Make are removed by Cleanup.
func (d *Dir) Make(tmpDir, dir string) error {
	if dir != "" {
		d.Dir = dir
		return nil
	}

	var err error
	if d.Dir, err = os.MkdirTemp(tmpDir, userDataDirPattern); err != nil {
		return fmt.Errorf("creating a temporary user data directory: %w", err)
	}
	d.remove = true

	return nil
}

// Cleanup removes the directory if Make created it. It's safe to call
// more than once.
func (d *Dir) Cleanup() error {
	if !d.remove {
		return nil
	}
	if err := os.RemoveAll(d.Dir); err != nil {
		return fmt.Errorf("removing user data directory %q: %w", d.Dir, err)
	}
	d.remove = false

	return nil
}
