//go:build !linux

package osext

import "os/exec"

// KillAfterParent is a no-op on platforms without parent death signals.
func KillAfterParent(_ *exec.Cmd) {}
