package common

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/chromedp/cdproto/target"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/grafana/downstage/cdp/domains"
	"github.com/grafana/downstage/log"
	"github.com/grafana/downstage/trace"
)

// Page is a handle to a browser tab attached with its own CDP session.
// Like Browser, a page can have several handles; the tab is closed once
// all of them are released.
type Page struct {
	core     *pageCore
	released atomic.Bool
}

type pageCore struct {
	browser *browserCore
	logger  *log.Logger

	targetID target.ID
	session  Session

	page  domains.Page
	dom   domains.DOM
	input domains.Input

	refs     int64
	torndown chan struct{}
}

func newPage(b *browserCore, tid target.ID, session Session) *Page {
	core := &pageCore{
		browser:  b,
		logger:   b.logger,
		targetID: tid,
		session:  session,
		page:     domains.NewPage(session),
		dom:      domains.NewDOM(session),
		input:    domains.NewInput(session),
		refs:     1,
		torndown: make(chan struct{}),
	}

	return newPageHandle(core)
}

func newPageHandle(core *pageCore) *Page {
	p := &Page{core: core}
	runtime.SetFinalizer(p, (*Page).finalize)

	return p
}

// TargetID returns the ID of the page target.
func (p *Page) TargetID() target.ID {
	return p.core.targetID
}

// Session returns the CDP session attached to the page.
func (p *Page) Session() Session {
	return p.core.session
}

// Clone returns a new handle to the same page. It returns nil if p has
// been released.
func (p *Page) Clone() *Page {
	if p.released.Load() {
		return nil
	}
	atomic.AddInt64(&p.core.refs, 1)

	return newPageHandle(p.core)
}

// Release drops this handle. Releasing the last one closes the page in
// the background.
func (p *Page) Release() {
	if !p.released.CompareAndSwap(false, true) {
		return
	}
	runtime.SetFinalizer(p, nil)
	p.core.release()
}

func (p *Page) finalize() {
	if !p.released.CompareAndSwap(false, true) {
		return
	}
	p.core.logger.Warnf("Page:finalize", "tid:%v a page handle was garbage collected without being released", p.core.targetID)
	p.core.release()
}

// Goto navigates the page to url. It returns once the browser has
// committed to the navigation, not when the page has loaded.
func (p *Page) Goto(ctx context.Context, url string) (err error) {
	tid := string(p.core.targetID)
	ctx, span := p.core.browser.tracer.TraceNavigation(ctx, tid, url)
	if err := p.trace(ctx, "page.goto", oteltrace.WithAttributes(attribute.String("page.url", url)),
		func(ctx context.Context) error {
			_, err := p.core.page.Navigate(ctx, url, "")
			return err //nolint:wrapcheck
		}); err != nil {
		trace.End(span, err)
		return err
	}

	p.core.logger.Debugf("Page:Goto", "tid:%v url:%q traceID:%q", tid, url, trace.GetTraceID(span.SpanContext()))

	return nil
}

// Document returns the root node of the page's document.
func (p *Page) Document(ctx context.Context) (*ElementHandle, error) {
	root, err := p.core.dom.GetDocument(ctx)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return newElementHandle(p.core, root.NodeID), nil
}

// QuerySelector returns the first element of the document matching
// selector. It returns ErrElementNotFound if there's none.
func (p *Page) QuerySelector(ctx context.Context, selector string) (*ElementHandle, error) {
	var el *ElementHandle
	err := p.trace(ctx, "page.querySelector", oteltrace.WithAttributes(attribute.String("selector", selector)),
		func(ctx context.Context) error {
			doc, err := p.Document(ctx)
			if err != nil {
				return err
			}
			el, err = doc.QuerySelector(ctx, selector)
			return err
		})

	return el, err
}

// Screenshot captures the page as PNG. The image is also written to path
// unless it's empty.
func (p *Page) Screenshot(ctx context.Context, path string) ([]byte, error) {
	var buf []byte
	err := p.trace(ctx, "page.screenshot", oteltrace.WithAttributes(attribute.String("path", path)),
		func(ctx context.Context) (err error) {
			if buf, err = p.core.page.CaptureScreenshot(ctx); err != nil {
				return err //nolint:wrapcheck
			}
			if path == "" {
				return nil
			}
			if err := p.core.browser.persister.Persist(ctx, path, bytes.NewReader(buf)); err != nil {
				return fmt.Errorf("saving screenshot to %q: %w", path, err)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	return buf, nil
}

// Close closes the page. The page handles stay valid but commands sent
// through them fail.
func (p *Page) Close(ctx context.Context) error {
	p.core.logger.Debugf("Page:Close", "tid:%v", p.core.targetID)
	p.core.browser.tracer.EndTarget(string(p.core.targetID))

	return p.core.browser.client.Target.CloseTarget(ctx, p.core.targetID) //nolint:wrapcheck
}

func (p *Page) trace(
	ctx context.Context, spanName string, opt oteltrace.SpanStartOption, fn func(context.Context) error,
) error {
	ctx, span := p.core.browser.tracer.TraceAPICall(ctx, string(p.core.targetID), spanName, opt)
	err := fn(ctx)
	trace.End(span, err)

	return err
}

func (c *pageCore) release() {
	if atomic.AddInt64(&c.refs, -1) > 0 {
		return
	}
	go c.teardown()
}

func (c *pageCore) teardown() {
	defer close(c.torndown)

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	c.browser.tracer.EndTarget(string(c.targetID))
	if err := c.browser.client.Target.CloseTarget(ctx, c.targetID); err != nil {
		c.logger.Debugf("Page:teardown", "tid:%v closing the page: %v", c.targetID, err)
	}
}
