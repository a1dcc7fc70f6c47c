package common

import "errors"

var (
	// ErrProcessSpawn is returned when the browser executable can't be
	// started.
	ErrProcessSpawn = errors.New("starting browser process")

	// ErrNoStderr is returned when the standard error stream of the
	// browser process can't be captured.
	ErrNoStderr = errors.New("browser process has no standard error stream")

	// ErrEndpointDiscoveryTimeout is returned when the browser doesn't
	// print its DevTools endpoint in time.
	ErrEndpointDiscoveryTimeout = errors.New("timed out waiting for the DevTools endpoint")

	// ErrElementNotFound is returned when a selector doesn't match any
	// element.
	ErrElementNotFound = errors.New("element not found")

	// ErrBrowserReleased is returned when a released Browser handle is
	// used.
	ErrBrowserReleased = errors.New("browser handle released")
)
