package domains

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpt "github.com/chromedp/cdproto/target"
)

// Target exposes the CDP Target domain actions.
type Target interface {
	CreateTarget(ctx context.Context, url string) (cdpt.ID, error)
	AttachToTarget(ctx context.Context, id cdpt.ID) (cdpt.SessionID, error)
	CloseTarget(ctx context.Context, id cdpt.ID) error
}

var _ Target = &target{}

type target struct {
	exec cdp.Executor
}

// NewTarget returns a new CDP Target domain wrapper.
func NewTarget(exec cdp.Executor) Target {
	return &target{exec}
}

// CreateTarget opens a new page target at url. An empty url opens a blank page.
func (t *target) CreateTarget(ctx context.Context, url string) (cdpt.ID, error) {
	action := cdpt.CreateTarget(url)
	id, err := action.Do(cdp.WithExecutor(ctx, t.exec))
	if err != nil {
		return "", fmt.Errorf("creating target: %w", err)
	}

	return id, nil
}

// AttachToTarget attaches to id in flat mode: commands for the target are
// sent on the same connection, tagged with the returned session ID.
func (t *target) AttachToTarget(ctx context.Context, id cdpt.ID) (cdpt.SessionID, error) {
	action := cdpt.AttachToTarget(id).WithFlatten(true)
	sid, err := action.Do(cdp.WithExecutor(ctx, t.exec))
	if err != nil {
		return "", fmt.Errorf("attaching to target %v: %w", id, err)
	}

	return sid, nil
}

func (t *target) CloseTarget(ctx context.Context, id cdpt.ID) error {
	// The deprecated success flag of the reply is ignored.
	action := cdpt.CloseTarget(id)
	if err := t.exec.Execute(ctx, cdpt.CommandCloseTarget, action, nil); err != nil {
		return fmt.Errorf("closing target %v: %w", id, err)
	}

	return nil
}
