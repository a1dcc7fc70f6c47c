package chromium

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/grafana/downstage/api"
	"github.com/grafana/downstage/common"
	"github.com/grafana/downstage/log"
)

// ErrExecutableNotFound is returned by Launch when no browser executable is
// configured and none is found in PATH.
var ErrExecutableNotFound = errors.New("browser executable not found")

// Executables looked up in PATH, in order, when no executable path is
// configured.
var defaultExecutables = []string{ //nolint:gochecknoglobals
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
}

var _ api.BrowserType = &BrowserType{}

// BrowserType launches and connects to Chromium based browsers.
type BrowserType struct {
	opts    *common.LaunchOptions
	logger  *log.Logger
	options []common.Option

	lookPath func(file string) (string, error)
}

// NewBrowserType returns a BrowserType using opts for every browser. A nil
// opts uses the defaults.
func NewBrowserType(opts *common.LaunchOptions, logger *log.Logger, options ...common.Option) *BrowserType {
	if opts == nil {
		opts = common.NewLaunchOptions()
	}
	return &BrowserType{
		opts:     opts,
		logger:   logger,
		options:  options,
		lookPath: exec.LookPath,
	}
}

// Name returns the name of this browser type.
func (b *BrowserType) Name() string {
	return "chromium"
}

// ExecutablePath returns the configured browser executable, or the first
// well-known one found in PATH. It's empty if there's none.
func (b *BrowserType) ExecutablePath() string {
	if b.opts.ExecutablePath != "" {
		return b.opts.ExecutablePath
	}
	for _, name := range defaultExecutables {
		if path, err := b.lookPath(name); err == nil {
			return path
		}
	}

	return ""
}

// Launch starts a new browser and returns it with its process ID.
func (b *BrowserType) Launch(ctx context.Context) (_ api.Browser, browserProcessID int, _ error) {
	path := b.ExecutablePath()
	if path == "" {
		return nil, 0, fmt.Errorf("%w in PATH, tried %v", ErrExecutableNotFound, defaultExecutables)
	}

	opts := *b.opts
	opts.ExecutablePath = path
	br, err := common.Launch(ctx, &opts, b.logger, b.options...)
	if err != nil {
		return nil, 0, err //nolint:wrapcheck
	}
	b.logger.Infof("BrowserType:Launch", "launched %q pid:%d", path, br.Pid())

	return &Browser{br}, br.Pid(), nil
}

// Connect attaches to the browser listening at wsEndpoint.
func (b *BrowserType) Connect(ctx context.Context, wsEndpoint string) (api.Browser, error) {
	br, err := common.Connect(ctx, wsEndpoint, b.opts, b.logger, b.options...)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return &Browser{br}, nil
}
