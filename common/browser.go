package common

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto"
	"golang.org/x/time/rate"

	"github.com/grafana/downstage/cdp"
	"github.com/grafana/downstage/log"
	"github.com/grafana/downstage/metrics"
	"github.com/grafana/downstage/storage"
	"github.com/grafana/downstage/trace"
)

// teardownTimeout bounds the best-effort commands sent when the last
// handle of a browser or page is released.
const teardownTimeout = 5 * time.Second

// Option configures a Browser.
type Option func(*settings)

type settings struct {
	metrics   *metrics.Transport
	tracer    *trace.Tracer
	persister storage.FilePersister
}

// WithMetrics records the CDP transport metrics in m.
func WithMetrics(m *metrics.Transport) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithTracer traces CDP commands and page operations with t.
func WithTracer(t *trace.Tracer) Option {
	return func(s *settings) {
		s.tracer = t
	}
}

// WithFilePersister makes pages write screenshots with fp.
func WithFilePersister(fp storage.FilePersister) Option {
	return func(s *settings) {
		s.persister = fp
	}
}

// Browser is a handle to a browser controlled over CDP. A browser can have
// several handles, see Clone; it's torn down once all of them are
// released.
type Browser struct {
	core     *browserCore
	released atomic.Bool
}

// browserCore is the state shared by all handles of a browser.
type browserCore struct {
	logger *log.Logger

	client  *cdp.Client
	session Session
	process processMeta

	tracer    *trace.Tracer
	persister storage.FilePersister

	refs     int64
	torndown chan struct{}
}

// Launch starts a local browser, waits for its DevTools endpoint and
// connects to it. The browser process is killed if any step fails, and
// when ctx is done.
func Launch(ctx context.Context, opts *LaunchOptions, logger *log.Logger, options ...Option) (*Browser, error) {
	if opts == nil {
		opts = NewLaunchOptions()
	}

	proc, err := NewLocalBrowserProcess(ctx, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	b, err := newBrowser(ctx, proc.WsURL(), opts, proc, logger, options...)
	if err != nil {
		proc.Kill()
		return nil, err
	}

	return b, nil
}

// Connect attaches to a running browser at wsURL. The browser process
// isn't owned: releasing the Browser closes it through CDP only.
func Connect(ctx context.Context, wsURL string, opts *LaunchOptions, logger *log.Logger, options ...Option) (*Browser, error) {
	if opts == nil {
		opts = NewLaunchOptions()
	}

	return newBrowser(ctx, wsURL, opts, remoteProcessMeta{}, logger, options...)
}

func newBrowser(
	ctx context.Context, wsURL string, opts *LaunchOptions, proc processMeta,
	logger *log.Logger, options ...Option,
) (*Browser, error) {
	s := &settings{
		persister: &storage.LocalFilePersister{},
	}
	for _, opt := range options {
		opt(s)
	}

	copts := []cdp.ClientOption{
		cdp.WithMetrics(s.metrics),
		cdp.WithTracer(s.tracer),
	}
	if opts.RateLimit > 0 {
		copts = append(copts, cdp.WithRateLimit(rate.Limit(opts.RateLimit), opts.RateBurst))
	}

	logger.Debugf("Browser:connect", "wsURL:%q pid:%d", wsURL, proc.Pid())
	client, err := cdp.Dial(ctx, wsURL, logger, copts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to browser DevTools URL: %w", err)
	}

	core := &browserCore{
		logger:    logger,
		client:    client,
		session:   NewSession(client, ""),
		process:   proc,
		tracer:    s.tracer,
		persister: s.persister,
		refs:      1,
		torndown:  make(chan struct{}),
	}

	return newBrowserHandle(core), nil
}

func newBrowserHandle(core *browserCore) *Browser {
	b := &Browser{core: core}
	runtime.SetFinalizer(b, (*Browser).finalize)

	return b
}

// Clone returns a new handle to the same browser. It returns nil if b has
// been released.
func (b *Browser) Clone() *Browser {
	if b.released.Load() {
		return nil
	}
	atomic.AddInt64(&b.core.refs, 1)

	return newBrowserHandle(b.core)
}

// Release drops this handle. When it's the last one, the browser is asked
// to close and, if it was launched by us, its process is killed. Release
// doesn't wait for either. Releasing a handle twice does nothing.
func (b *Browser) Release() {
	if !b.released.CompareAndSwap(false, true) {
		return
	}
	runtime.SetFinalizer(b, nil)
	b.core.release()
}

func (b *Browser) finalize() {
	if !b.released.CompareAndSwap(false, true) {
		return
	}
	b.core.logger.Warnf("Browser:finalize", "cid:%s a browser handle was garbage collected without being released", b.core.client.ID())
	b.core.release()
}

// Close asks the browser to close. The browser doesn't have to answer
// before it goes away, so the error is informational.
func (b *Browser) Close(ctx context.Context) error {
	if b.released.Load() {
		return ErrBrowserReleased
	}
	b.core.logger.Debugf("Browser:Close", "cid:%s", b.core.client.ID())

	return b.core.client.Browser.Close(ctx) //nolint:wrapcheck
}

// NewPage opens a blank page and attaches to it.
func (b *Browser) NewPage(ctx context.Context) (*Page, error) {
	if b.released.Load() {
		return nil, ErrBrowserReleased
	}

	tid, err := b.core.client.Target.CreateTarget(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("creating a new page: %w", err)
	}
	sid, err := b.core.client.Target.AttachToTarget(ctx, tid)
	if err != nil {
		b.core.logger.Warnf("Browser:NewPage", "tid:%v is left open: %v", tid, err)
		return nil, fmt.Errorf("creating a new page: %w", err)
	}
	b.core.logger.Debugf("Browser:NewPage", "tid:%v sid:%v", tid, sid)

	return newPage(b.core, tid, b.core.session.WithSessionID(sid)), nil
}

// IsConnected reports whether the CDP connection to the browser is up.
func (b *Browser) IsConnected() bool {
	return b.core.client.IsConnected()
}

// Done returns a channel that's closed when the connection to the browser
// is lost.
func (b *Browser) Done() <-chan struct{} {
	return b.core.client.Done()
}

// Pid returns the browser process ID, or -1 for connected browsers.
func (b *Browser) Pid() int {
	return b.core.process.Pid()
}

// Session returns the browser-level CDP session.
func (b *Browser) Session() Session {
	return b.core.session
}

// Subscribe returns a channel receiving the given CDP events from every
// session of the browser, and a function that stops the subscription.
func (b *Browser) Subscribe(events ...cdproto.MethodType) (<-chan *cdp.Event, func()) {
	return b.core.client.Subscribe(events...)
}

// UserAgent returns the controlled browser's user agent string.
func (b *Browser) UserAgent(ctx context.Context) (string, error) {
	v, err := b.core.client.Browser.GetVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("getting browser user agent: %w", err)
	}

	return v.UserAgent, nil
}

// Version returns the controlled browser's version.
func (b *Browser) Version(ctx context.Context) (string, error) {
	v, err := b.core.client.Browser.GetVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("getting browser version: %w", err)
	}

	i := strings.Index(v.Product, "/")
	if i == -1 {
		return v.Product, nil
	}
	return v.Product[i+1:], nil
}

func (c *browserCore) release() {
	if atomic.AddInt64(&c.refs, -1) > 0 {
		return
	}
	go c.teardown()
}

func (c *browserCore) teardown() {
	defer close(c.torndown)

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	cid := c.client.ID()
	c.logger.Debugf("Browser:teardown", "cid:%s pid:%d", cid, c.process.Pid())
	if err := c.client.Browser.Close(ctx); err != nil {
		c.logger.Debugf("Browser:teardown", "cid:%s closing the browser: %v", cid, err)
	}
	c.client.Close()
	c.process.Kill()
}
