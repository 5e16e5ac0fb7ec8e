package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/cachesim/monitor"
)

func newServeCmd(opts *options) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve [flags] <trace>",
		Short: "Serve a trace over HTTP and run it on request.",
		Long: "serve starts the monitoring server. POST /api/run starts a " +
			"simulation of the trace; the other endpoints report its " +
			"status, results, process resources and Prometheus metrics.",
		Args: exactlyOneTrace,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, opts, args[0])
		},
	}

	serveCmd.Flags().IntVar(&opts.port, "port", 0,
		"Port of the monitoring server (0 picks a free port)")
	serveCmd.Flags().BoolVar(&opts.open, "open", false,
		"Open the status page in a browser")

	return serveCmd
}

func serve(cmd *cobra.Command, opts *options, location string) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger := cfg.Logger(cmd.ErrOrStderr())

	runnerOpts, recorder, err := runnerOptions(cfg, logger)
	if err != nil {
		return err
	}
	if recorder != nil {
		defer func() { _ = recorder.Close() }()
	}

	m, err := monitor.New(location,
		monitor.WithPortNumber(cfg.Monitor.Port),
		monitor.WithLogger(logger),
		monitor.WithRunnerOptions(runnerOpts...),
	)
	if err != nil {
		return err
	}

	url, err := m.StartServer()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Monitoring %s at %s\n", location, url)

	if cfg.Monitor.OpenBrowser {
		if err := m.OpenBrowser(url); err != nil {
			logger.Warn("could not open browser", "err", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return m.Shutdown(shutdownCtx)
}
