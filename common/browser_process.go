package common

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/grafana/downstage/log"
	"github.com/grafana/downstage/osext"
	"github.com/grafana/downstage/storage"
)

// Flags every launched browser gets.
const (
	flagAutomation    = "--enable-automation"
	flagDebuggingPort = "--remote-debugging-port=0"
	flagUserDataDir   = "--user-data-dir="
	flagHeadless      = "--headless=new"
)

var devToolsURLRegex = regexp.MustCompile(`ws://.+$`) //nolint:gochecknoglobals

// chromiumErrorMarker marks Chromium log lines of severity ERROR, e.g.
// [6497:6497:1013/103521.932979:ERROR:ozone_platform_x11.cc(247)] Missing X server or $DISPLAY
const chromiumErrorMarker = ":ERROR:"

// exitGracePeriod is how long the DevTools URL is still awaited after the
// browser exits.
const exitGracePeriod = 100 * time.Millisecond

// BrowserProcess is a browser started by this process.
type BrowserProcess struct {
	logger *log.Logger

	cmd command

	wsURL string

	// The directory where user data for the browser is stored.
	userDataDir *storage.Dir

	killOnce sync.Once
}

type command struct {
	*exec.Cmd
	done   chan struct{}
	stderr io.Reader
}

// NewLocalBrowserProcess starts the browser and waits, at most
// opts.Timeout, for its DevTools endpoint. The process is killed if the
// endpoint can't be found.
func NewLocalBrowserProcess(
	ctx context.Context, opts *LaunchOptions, logger *log.Logger,
) (*BrowserProcess, error) {
	p, err := StartBrowserProcess(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	if _, err := p.DiscoverEndpoint(ctx, opts.Timeout); err != nil {
		p.Kill()
		return nil, err
	}

	return p, nil
}

// StartBrowserProcess starts the browser with the automation flags and a
// temporary profile, without waiting for its DevTools endpoint. The
// process is killed when ctx is done.
func StartBrowserProcess(
	ctx context.Context, opts *LaunchOptions, logger *log.Logger,
) (*BrowserProcess, error) {
	dataDir := &storage.Dir{}
	if err := dataDir.Make("", opts.UserDataDir); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessSpawn, err)
	}

	cmd, err := execute(ctx, opts.ExecutablePath, launchArgs(opts, dataDir.Dir), opts.Env, dataDir, logger)
	if err != nil {
		if cerr := dataDir.Cleanup(); cerr != nil {
			logger.Errorf("BrowserProcess:start", "%v", cerr)
		}
		return nil, err
	}
	logger.Debugf("BrowserProcess:start", "pid:%d path:%q dataDir:%q", cmd.Process.Pid, opts.ExecutablePath, dataDir.Dir)

	return &BrowserProcess{
		logger:      logger,
		cmd:         cmd,
		userDataDir: dataDir,
	}, nil
}

// DiscoverEndpoint reads the DevTools WebSocket URL from the browser's
// standard error, for at most timeout. On timeout the error wraps
// ErrEndpointDiscoveryTimeout and the process is left running; it's up to
// the caller to Kill it. It must be called once.
func (p *BrowserProcess) DiscoverEndpoint(ctx context.Context, timeout time.Duration) (string, error) {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wsURL, err := parseDevToolsURL(dctx, p.cmd)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("%w after %s", ErrEndpointDiscoveryTimeout, timeout)
		}
		return "", fmt.Errorf("getting DevTools URL: %w", err)
	}
	p.wsURL = wsURL
	p.logger.Debugf("BrowserProcess:DiscoverEndpoint", "pid:%d wsURL:%q", p.Pid(), wsURL)

	// The browser blocks once the pipe is full.
	go p.drainStderr()

	return wsURL, nil
}

// WsURL returns the Websocket URL that the browser is listening on for CDP
// clients. It's empty until DiscoverEndpoint succeeds.
func (p *BrowserProcess) WsURL() string {
	return p.wsURL
}

// Pid returns the browser process ID.
func (p *BrowserProcess) Pid() int {
	return p.cmd.Process.Pid
}

// Done returns a channel that is closed once the process has exited and
// its user data directory is cleaned up.
func (p *BrowserProcess) Done() <-chan struct{} {
	return p.cmd.done
}

// Kill kills the browser process. It's safe to call more than once and
// after the process has exited.
func (p *BrowserProcess) Kill() {
	p.killOnce.Do(func() {
		p.logger.Debugf("BrowserProcess:Kill", "pid:%d", p.Pid())
		if err := osext.Kill(p.cmd.Process); err != nil {
			p.logger.Debugf("BrowserProcess:Kill", "pid:%d %v", p.Pid(), err)
		}
	})
}

func (p *BrowserProcess) drainStderr() {
	scanner := bufio.NewScanner(p.cmd.stderr)
	for scanner.Scan() {
		p.logger.Tracef("BrowserProcess:stderr", "pid:%d %s", p.Pid(), scanner.Text())
	}
}

func launchArgs(opts *LaunchOptions, userDataDir string) []string {
	args := []string{
		flagAutomation,
		flagDebuggingPort,
		flagUserDataDir + userDataDir,
	}
	if opts.Headless {
		args = append(args, flagHeadless)
	}

	return append(args, opts.Args...)
}

func execute(
	ctx context.Context, path string, args, env []string, dataDir *storage.Dir,
	logger *log.Logger,
) (command, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	osext.KillAfterParent(cmd)

	// Set up environment variable for process
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return command{}, fmt.Errorf("%w: %w", ErrNoStderr, err)
	}

	// We must start the cmd before calling cmd.Wait, as otherwise the two
	// can run into a data race.
	if err := cmd.Start(); err != nil {
		return command{}, fmt.Errorf("%w %q: %w", ErrProcessSpawn, path, err)
	}
	if err := ctx.Err(); err != nil {
		if kerr := osext.Kill(cmd.Process); kerr != nil {
			logger.Debugf("BrowserProcess", "killing process with PID %d: %v", cmd.Process.Pid, kerr)
		}
		_ = cmd.Wait()
		return command{}, fmt.Errorf("%w: %w", ErrProcessSpawn, err)
	}

	done := make(chan struct{})
	go func() {
		defer func() {
			if err := dataDir.Cleanup(); err != nil {
				logger.Errorf("BrowserProcess", "cleaning up the user data directory: %v", err)
			}
			close(done)
		}()

		if err := cmd.Wait(); err != nil {
			logger.Debugf("BrowserProcess", "process with PID %d ended: %v", cmd.Process.Pid, err)
		}
	}()

	return command{cmd, done, stderr}, nil
}

// parseDevToolsURL scans the browser's standard error for the line that
// announces its DevTools endpoint. If the stream ends first, the last
// error the browser logged is returned, as it usually explains why the
// browser couldn't start.
func parseDevToolsURL(ctx context.Context, cmd command) (string, error) {
	type result struct {
		devToolsURL string
		err         error
	}
	parsed := make(chan result, 1)
	go func() {
		var fatalErr error
		scanner := bufio.NewScanner(cmd.stderr)
		for scanner.Scan() {
			line := scanner.Text()
			if !utf8.ValidString(line) {
				continue
			}
			if strings.Contains(line, chromiumErrorMarker) {
				fatalErr = parseChromiumError(line)
				continue
			}
			if u := devToolsURLRegex.FindString(line); u != "" {
				parsed <- result{devToolsURL: strings.TrimSpace(u)}
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = fmt.Errorf("browser output ended without a DevTools URL: %w", io.EOF)
		}
		if fatalErr != nil {
			err = fatalErr
		}
		parsed <- result{err: err}
	}()

	select {
	case r := <-parsed:
		return r.devToolsURL, r.err
	case <-cmd.done:
		// The browser may have printed the URL right before exiting.
		select {
		case r := <-parsed:
			if r.err == nil {
				return r.devToolsURL, nil
			}
		case <-time.After(exitGracePeriod):
		}
		return "", errors.New("browser process ended unexpectedly")
	case <-ctx.Done():
		return "", ctx.Err() //nolint:wrapcheck
	}
}

// parseChromiumError returns the message of a Chromium log line.
func parseChromiumError(line string) error {
	if i := strings.Index(line, "] "); i >= 0 {
		line = line[i+2:]
	}
	return errors.New(strings.TrimSpace(line))
}
