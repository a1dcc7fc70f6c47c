package common

const (
	unknownProcessPid = -1
)

// processMeta is the browser process a Browser is responsible for.
type processMeta interface {
	Pid() int
	Kill()
}

var _ processMeta = &BrowserProcess{}

// remoteProcessMeta is a placeholder for a browser that was connected to
// rather than launched, and therefore isn't ours to kill.
type remoteProcessMeta struct{}

// Pid returns -1 as the remote browser process is unknown.
func (remoteProcessMeta) Pid() int {
	return unknownProcessPid
}

// Kill does nothing, the remote browser outlives us.
func (remoteProcessMeta) Kill() {}
