// Command downstage drives a Chromium based browser over the Chrome
// DevTools Protocol.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gs := newGlobalState(os.Stdin, os.Stdout, os.Stderr, os.LookupEnv)
	if err := newRootCommand(gs).ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintln(gs.stderr, "error:", err) //nolint:errcheck
		stop()
		os.Exit(1) //nolint:gocritic
	}
}
