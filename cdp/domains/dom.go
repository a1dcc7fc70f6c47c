package domains

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpdom "github.com/chromedp/cdproto/dom"
)

// DOM exposes the CDP DOM domain actions.
type DOM interface {
	GetDocument(ctx context.Context) (*cdp.Node, error)
	QuerySelector(ctx context.Context, nodeID cdp.NodeID, selector string) (cdp.NodeID, error)
	GetBoxModel(ctx context.Context, nodeID cdp.NodeID) (*cdpdom.BoxModel, error)
}

var _ DOM = &dom{}

type dom struct {
	exec cdp.Executor
}

// NewDOM returns a new CDP DOM domain wrapper.
func NewDOM(exec cdp.Executor) DOM {
	return &dom{exec}
}

func (d *dom) GetDocument(ctx context.Context) (*cdp.Node, error) {
	action := cdpdom.GetDocument()
	root, err := action.Do(cdp.WithExecutor(ctx, d.exec))
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}

	return root, nil
}

// QuerySelector returns the first descendant of nodeID matching selector.
// The browser replies with node ID 0 when nothing matches.
func (d *dom) QuerySelector(ctx context.Context, nodeID cdp.NodeID, selector string) (cdp.NodeID, error) {
	action := cdpdom.QuerySelector(nodeID, selector)
	id, err := action.Do(cdp.WithExecutor(ctx, d.exec))
	if err != nil {
		return 0, fmt.Errorf("querying selector %q: %w", selector, err)
	}

	return id, nil
}

func (d *dom) GetBoxModel(ctx context.Context, nodeID cdp.NodeID) (*cdpdom.BoxModel, error) {
	action := cdpdom.GetBoxModel().WithNodeID(nodeID)
	model, err := action.Do(cdp.WithExecutor(ctx, d.exec))
	if err != nil {
		return nil, fmt.Errorf("getting box model of node %d: %w", nodeID, err)
	}

	return model, nil
}
