package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/grafana/downstage/api"
	"github.com/grafana/downstage/common"
	"github.com/grafana/downstage/log"
)

const selectorPollInterval = 100 * time.Millisecond

type screenshotFlags struct {
	output   string
	selector string
	click    bool
	wait     time.Duration
}

func newScreenshotCommand(gs *globalState) *cobra.Command {
	var f screenshotFlags

	cmd := &cobra.Command{
		Use:   "screenshot URL",
		Short: "Open URL in a new page and save a PNG screenshot of it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.click && f.selector == "" {
				return errors.New("--click needs a --selector")
			}
			return gs.withBrowser(cmd, func(ctx context.Context, logger *log.Logger, b api.Browser) error {
				n, err := screenshot(ctx, logger, b, args[0], f)
				if err != nil {
					return err
				}
				fmt.Fprintf(gs.stdout, "saved %s (%d bytes)\n", color.New(color.Bold).Sprint(f.output), n)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&f.output, "output", "o", "screenshot.png", "file to write the screenshot to")
	cmd.Flags().StringVar(&f.selector, "selector", "", "wait for an element matching this CSS selector")
	cmd.Flags().BoolVar(&f.click, "click", false, "click the element matching --selector before the screenshot")
	cmd.Flags().DurationVar(&f.wait, "wait", 10*time.Second, "how long to wait for --selector")

	return cmd
}

func screenshot(ctx context.Context, logger *log.Logger, b api.Browser, url string, f screenshotFlags) (int, error) {
	p, err := b.NewPage(ctx)
	if err != nil {
		return 0, err //nolint:wrapcheck
	}
	defer p.Release()

	if err := p.Goto(ctx, url); err != nil {
		return 0, err //nolint:wrapcheck
	}
	if f.selector != "" {
		el, err := waitForSelector(ctx, p, f.selector, f.wait)
		if err != nil {
			return 0, err
		}
		if f.click {
			logger.Debugf("screenshot", "clicking %q", f.selector)
			if err := el.Click(ctx); err != nil {
				return 0, err //nolint:wrapcheck
			}
		}
	}

	buf, err := p.Screenshot(ctx, f.output)
	if err != nil {
		return 0, err //nolint:wrapcheck
	}

	return len(buf), nil
}

// waitForSelector polls the page until an element matches selector. Goto
// returns before the document is loaded, so the element may not exist yet.
func waitForSelector(ctx context.Context, p api.Page, selector string, timeout time.Duration) (api.ElementHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t := time.NewTicker(selectorPollInterval)
	defer t.Stop()
	for {
		el, err := p.QuerySelector(ctx, selector)
		if err == nil {
			return el, nil
		}
		if !errors.Is(err, common.ErrElementNotFound) && ctx.Err() == nil {
			return nil, err //nolint:wrapcheck
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %q: %w", selector, err)
		case <-t.C:
		}
	}
}
