package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/grafana/downstage/api"
	"github.com/grafana/downstage/log"
)

func newVersionCommand(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the browser version and user agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return gs.withBrowser(cmd, func(ctx context.Context, _ *log.Logger, b api.Browser) error {
				v, err := b.Version(ctx)
				if err != nil {
					return err //nolint:wrapcheck
				}
				ua, err := b.UserAgent(ctx)
				if err != nil {
					return err //nolint:wrapcheck
				}

				key := color.New(color.Bold).SprintFunc()
				fmt.Fprintf(gs.stdout, "%s %s\n", key("version:   "), v)
				fmt.Fprintf(gs.stdout, "%s %s\n", key("user agent:"), ua)
				if pid := b.Pid(); pid > 0 {
					fmt.Fprintf(gs.stdout, "%s %d\n", key("pid:       "), pid)
				}
				return nil
			})
		},
	}
}
