// Package chromium is responsible for launching a Chrome browser process and managing its lifetime.
package chromium

import (
	"context"

	"github.com/grafana/downstage/api"
	"github.com/grafana/downstage/common"
)

var (
	_ api.Browser       = &Browser{}
	_ api.Page          = &Page{}
	_ api.ElementHandle = &ElementHandle{}
)

// Browser is the public interface of a CDP browser.
type Browser struct {
	*common.Browser
}

// Clone returns another handle to the browser, or nil if b was released.
func (b *Browser) Clone() api.Browser {
	c := b.Browser.Clone()
	if c == nil {
		return nil
	}
	return &Browser{c}
}

// NewPage opens a blank page.
func (b *Browser) NewPage(ctx context.Context) (api.Page, error) {
	p, err := b.Browser.NewPage(ctx)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return &Page{p}, nil
}

// Page is a browser tab.
type Page struct {
	*common.Page
}

// Clone returns another handle to the page, or nil if p was released.
func (p *Page) Clone() api.Page {
	c := p.Page.Clone()
	if c == nil {
		return nil
	}
	return &Page{c}
}

// Document returns the root node of the page's document.
func (p *Page) Document(ctx context.Context) (api.ElementHandle, error) {
	return wrapElement(p.Page.Document(ctx))
}

// QuerySelector returns the first element matching selector.
func (p *Page) QuerySelector(ctx context.Context, selector string) (api.ElementHandle, error) {
	return wrapElement(p.Page.QuerySelector(ctx, selector))
}

// ElementHandle is a DOM element of a page.
type ElementHandle struct {
	*common.ElementHandle
}

// QuerySelector returns the first descendant matching selector.
func (h *ElementHandle) QuerySelector(ctx context.Context, selector string) (api.ElementHandle, error) {
	return wrapElement(h.ElementHandle.QuerySelector(ctx, selector))
}

func wrapElement(el *common.ElementHandle, err error) (api.ElementHandle, error) {
	if err != nil {
		return nil, err
	}
	return &ElementHandle{el}, nil
}
