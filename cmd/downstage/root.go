package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/grafana/downstage/api"
	"github.com/grafana/downstage/chromium"
	"github.com/grafana/downstage/common"
	"github.com/grafana/downstage/log"
	"github.com/grafana/downstage/metrics"
	"github.com/grafana/downstage/otel"
	"github.com/grafana/downstage/trace"
)

const shutdownTimeout = 5 * time.Second

// globalState holds the flags shared by all commands and the process
// streams, so tests can run commands in isolation.
type globalState struct {
	configPath    string
	debug         bool
	wsURL         string
	traceEndpoint string
	traceStdout   bool
	metricsAddr   string

	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
	lookupEnv common.LookupEnvFunc
}

func newGlobalState(stdin io.Reader, stdout, stderr io.Writer, lookupEnv common.LookupEnvFunc) *globalState {
	return &globalState{
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
		lookupEnv: lookupEnv,
	}
}

func newRootCommand(gs *globalState) *cobra.Command {
	root := &cobra.Command{
		Use:           "downstage",
		Short:         "Drive a Chromium based browser over the DevTools protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(gs.stdin)
	root.SetOut(gs.stdout)
	root.SetErr(gs.stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&gs.configPath, "config", "c", "", "YAML file with launch options")
	flags.BoolVar(&gs.debug, "debug", false, "log CDP traffic")
	flags.StringVar(&gs.wsURL, "ws", "", "attach to the browser at this DevTools URL instead of launching one")
	flags.StringVar(&gs.traceEndpoint, "trace-endpoint", "", "export traces over OTLP/HTTP to this host:port")
	flags.BoolVar(&gs.traceStdout, "trace-stdout", false, "write traces to stderr")
	flags.StringVar(&gs.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(
		newVersionCommand(gs),
		newREPLCommand(gs),
		newScreenshotCommand(gs),
	)

	return root
}

// launchOptions returns the defaults overridden by the config file, then
// by the environment, then by the flags.
func (gs *globalState) launchOptions() (*common.LaunchOptions, error) {
	opts := common.NewLaunchOptions()
	if gs.configPath != "" {
		f, err := os.Open(gs.configPath)
		if err != nil {
			return nil, fmt.Errorf("opening config: %w", err)
		}
		defer f.Close() //nolint:errcheck
		if err := opts.ParseYAML(f); err != nil {
			return nil, err //nolint:wrapcheck
		}
	}
	if err := opts.Parse(gs.lookupEnv); err != nil {
		return nil, err //nolint:wrapcheck
	}
	if gs.debug {
		opts.Debug = true
	}

	return opts, opts.Validate() //nolint:wrapcheck
}

func (gs *globalState) traceProvider(ctx context.Context) (otel.TraceProvider, error) {
	switch {
	case gs.traceEndpoint != "":
		return otel.NewTraceProvider(ctx, "http", gs.traceEndpoint, true) //nolint:wrapcheck
	case gs.traceStdout:
		return otel.NewStdoutTraceProvider(gs.stderr) //nolint:wrapcheck
	default:
		return otel.NewNoopTraceProvider(), nil
	}
}

// withBrowser sets up logging, tracing and metrics, launches or attaches
// to a browser and runs fn with it. The browser is released, the traces
// flushed and the metrics server stopped once fn returns.
func (gs *globalState) withBrowser(cmd *cobra.Command, fn func(context.Context, *log.Logger, api.Browser) error) error {
	ctx := cmd.Context()
	opts, err := gs.launchOptions()
	if err != nil {
		return err
	}
	logger, err := log.NewDefault(gs.stderr, opts.Debug, opts.LogCategoryFilter)
	if err != nil {
		return err //nolint:wrapcheck
	}

	tp, err := gs.traceProvider(ctx)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warnf("downstage", "flushing traces: %v", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	options := []common.Option{
		common.WithMetrics(metrics.NewTransport(registry)),
		common.WithTracer(trace.NewTracer(logger, tp, map[string]string{"downstage.command": cmd.Name()})),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if gs.metricsAddr != "" {
		lis, err := net.Listen("tcp", gs.metricsAddr)
		if err != nil {
			return fmt.Errorf("listening for metrics: %w", err)
		}
		logger.Infof("downstage", "serving metrics on http://%s/metrics", lis.Addr())
		srv := newMetricsServer(registry)
		g.Go(func() error {
			if err := srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving metrics: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx) //nolint:contextcheck
		})
	}

	g.Go(func() error {
		defer cancel()

		b, err := gs.browser(ctx, chromium.NewBrowserType(opts, logger, options...))
		if err != nil {
			return err
		}
		defer b.Release()

		return fn(ctx, logger, b)
	})

	return g.Wait() //nolint:wrapcheck
}

func newMetricsServer(registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (gs *globalState) browser(ctx context.Context, bt api.BrowserType) (api.Browser, error) {
	if gs.wsURL != "" {
		return bt.Connect(ctx, gs.wsURL) //nolint:wrapcheck
	}
	b, _, err := bt.Launch(ctx)

	return b, err //nolint:wrapcheck
}
