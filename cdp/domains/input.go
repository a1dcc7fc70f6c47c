package domains

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpi "github.com/chromedp/cdproto/input"
)

// Input exposes the CDP Input domain actions.
type Input interface {
	DispatchMouseEvent(ctx context.Context, typ cdpi.MouseType, x, y float64, clickCount int64) error
}

var _ Input = &input{}

type input struct {
	exec cdp.Executor
}

// NewInput returns a new CDP Input domain wrapper.
func NewInput(exec cdp.Executor) Input {
	return &input{exec}
}

// DispatchMouseEvent dispatches a left button mouse event at x, y.
func (i *input) DispatchMouseEvent(ctx context.Context, typ cdpi.MouseType, x, y float64, clickCount int64) error {
	action := cdpi.DispatchMouseEvent(typ, x, y).
		WithButton(cdpi.Left).
		WithClickCount(clickCount)
	if err := action.Do(cdp.WithExecutor(ctx, i.exec)); err != nil {
		return fmt.Errorf("dispatching %s mouse event at (%g, %g): %w", typ, x, y, err)
	}

	return nil
}
