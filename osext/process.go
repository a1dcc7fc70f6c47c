// Package osext provides extensions to the os package.
package osext

import (
	"errors"
	"fmt"
	"os"
)

// Kill kills p. A process that has already exited is not an error.
func Kill(p *os.Process) error {
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing process %d: %w", p.Pid, err)
	}

	return nil
}
