package common

import (
	"context"
	"errors"
	"fmt"
	"math"

	cdppkg "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"

	"github.com/grafana/downstage/api"
)

// ElementHandle is a DOM node of a page, addressed by its node ID. It's
// valid until the page navigates or the document changes.
type ElementHandle struct {
	page   *pageCore
	nodeID cdppkg.NodeID
}

func newElementHandle(p *pageCore, id cdppkg.NodeID) *ElementHandle {
	return &ElementHandle{page: p, nodeID: id}
}

// NodeID returns the DOM node ID of the element.
func (h *ElementHandle) NodeID() cdppkg.NodeID {
	return h.nodeID
}

// QuerySelector returns the first descendant matching selector. It returns
// ErrElementNotFound if there's none.
func (h *ElementHandle) QuerySelector(ctx context.Context, selector string) (*ElementHandle, error) {
	id, err := h.page.dom.QuerySelector(ctx, h.nodeID, selector)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	if id == 0 {
		return nil, fmt.Errorf("%w: %q", ErrElementNotFound, selector)
	}

	return newElementHandle(h.page, id), nil
}

// BoundingBox returns the content box of the element.
func (h *ElementHandle) BoundingBox(ctx context.Context) (*api.Rect, error) {
	model, err := h.page.dom.GetBoxModel(ctx, h.nodeID)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return quadBounds(model.Content)
}

// Click presses and releases the left mouse button at the centre of the
// element.
func (h *ElementHandle) Click(ctx context.Context) error {
	box, err := h.BoundingBox(ctx)
	if err != nil {
		return fmt.Errorf("clicking node %d: %w", h.nodeID, err)
	}
	x := box.X + box.Width/2
	y := box.Y + box.Height/2

	for _, typ := range []input.MouseType{input.MousePressed, input.MouseReleased} {
		if err := h.page.input.DispatchMouseEvent(ctx, typ, x, y, 1); err != nil {
			return fmt.Errorf("clicking node %d: %w", h.nodeID, err)
		}
	}

	return nil
}

// quadBounds returns the smallest rectangle containing the points of q,
// given as x1, y1, ..., x4, y4.
func quadBounds(q []float64) (*api.Rect, error) {
	if len(q) != 8 {
		return nil, errors.New("element has no layout box")
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := 0; i < len(q); i += 2 {
		minX, maxX = math.Min(minX, q[i]), math.Max(maxX, q[i])
		minY, maxY = math.Min(minY, q[i+1]), math.Max(maxY, q[i+1])
	}

	return &api.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, nil
}
