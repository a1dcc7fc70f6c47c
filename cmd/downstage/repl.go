package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/target"
	"github.com/fatih/color"
	"github.com/mailru/easyjson"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/grafana/downstage/api"
	"github.com/grafana/downstage/cdp"
	"github.com/grafana/downstage/chromium"
	"github.com/grafana/downstage/common"
	"github.com/grafana/downstage/log"
)

// replCommand is one line of REPL input, e.g.
//
//	{"method":"Target.createTarget", "params":{"url":"https://grafana.com"}}
type replCommand struct {
	Method    string              `json:"method"`
	Params    easyjson.RawMessage `json:"params,omitempty"`
	SessionID target.SessionID    `json:"sessionId,omitempty"`
}

func newREPLCommand(gs *globalState) *cobra.Command {
	var events []string

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Send CDP commands read from stdin, one JSON object per line",
		Long: `Send CDP commands read from stdin and print their results.

Each line is a JSON object with a method, and optionally params and a
sessionId, e.g.:

  {"method":"Target.createTarget","params":{"url":"about:blank"}}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return gs.withBrowser(cmd, func(ctx context.Context, logger *log.Logger, b api.Browser) error {
				cb, ok := b.(*chromium.Browser)
				if !ok {
					return fmt.Errorf("repl needs a chromium browser, got %T", b)
				}
				r := &repl{
					session: cb.Session(),
					logger:  logger,
					out:     gs.stdout,
				}
				return r.run(ctx, cb.Browser, gs.stdin, events)
			})
		},
	}
	cmd.Flags().StringSliceVar(&events, "events", nil, "print these CDP events, e.g. Target.targetCreated")

	return cmd
}

type repl struct {
	session common.Session
	logger  *log.Logger
	out     io.Writer
}

func (r *repl) run(ctx context.Context, b *common.Browser, in io.Reader, events []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if len(events) > 0 {
		names := make([]cdproto.MethodType, 0, len(events))
		for _, e := range events {
			names = append(names, cdproto.MethodType(e))
		}
		ch, unsubscribe := b.Subscribe(names...)
		g.Go(func() error {
			defer unsubscribe()
			r.printEvents(ctx, ch)
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		return r.processUserInput(ctx, in)
	})

	return g.Wait() //nolint:wrapcheck
}

func (r *repl) processUserInput(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := r.execute(ctx, line); err != nil {
			return err
		}
	}

	return sc.Err() //nolint:wrapcheck
}

// execute sends one command. Protocol and input errors are printed and
// the REPL goes on; losing the connection ends it.
func (r *repl) execute(ctx context.Context, line []byte) error {
	var c replCommand
	if err := json.Unmarshal(line, &c); err != nil {
		r.printErr(fmt.Errorf("parsing command: %w", err))
		return nil
	}
	if c.Method == "" {
		r.printErr(errors.New("parsing command: missing method"))
		return nil
	}
	prettyf(r.out, color.New(color.FgCyan), "-> %s", line)

	var params easyjson.Marshaler
	if len(c.Params) > 0 {
		params = &c.Params
	}
	var res easyjson.RawMessage
	err := r.session.WithSessionID(c.SessionID).Execute(ctx, c.Method, params, &res)
	switch {
	case errors.Is(err, cdp.ErrConnectionClosed), ctx.Err() != nil:
		return err
	case err != nil:
		r.printErr(err)
	default:
		prettyf(r.out, color.New(color.FgGreen), "<- %s", []byte(res))
	}

	return nil
}

func (r *repl) printEvents(ctx context.Context, ch <-chan *cdp.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			buf, err := json.Marshal(evt.Data)
			if err != nil {
				r.logger.Warnf("repl:printEvents", "encoding %s: %v", evt.Name, err)
				continue
			}
			prettyf(r.out, color.New(color.FgYellow), "<< "+string(evt.Name)+" %s", buf)
		}
	}
}

func (r *repl) printErr(err error) {
	color.New(color.FgRed).Fprintln(r.out, "!!", err) //nolint:errcheck
}

// prettyf prints format with its single argument indented as JSON, or as
// is if it isn't JSON.
func prettyf(w io.Writer, c *color.Color, format string, buf []byte) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buf, "", "  "); err == nil {
		buf = pretty.Bytes()
	}
	c.Fprintf(w, format+"\n", buf) //nolint:errcheck
}
