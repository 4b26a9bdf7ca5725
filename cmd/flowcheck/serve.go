package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/flowcheck/internal/metrics"
	"github.com/rendis/flowcheck/pkg/mcp"
)

func newServeCmd(a *app) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the validation tools over MCP on stdio",
		Long: `Serve runs an MCP server on stdin/stdout exposing validate_workflow,
validate_workflow_connections, validate_workflow_expressions, validate_node
and validate_node_minimal. Logs go to stderr. With --metrics-addr a
Prometheus /metrics endpoint is served alongside.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("metrics-addr") {
				a.cfg.MetricsAddr = metricsAddr
			}
			if err := a.serve(cmd.Context()); err != nil {
				return &exitError{code: exitFailure, err: err}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for the Prometheus /metrics endpoint, e.g. :9464")
	return cmd
}

// serve runs the MCP server and, when configured, the metrics endpoint until
// ctx is done or either of them fails.
func (a *app) serve(ctx context.Context) error {
	if a.cfg.MetricsAddr != "" {
		a.recorder = metrics.NewRecorder()
	}
	v, release, err := a.buildValidator(ctx)
	if err != nil {
		return err
	}
	defer release()

	srv := mcp.NewFlowcheckServer(mcp.ServerDeps{
		Validator: v,
		Logger:    a.logger,
		Profile:   a.cfg.Profile,
		Version:   version,
	})

	g, gctx := errgroup.WithContext(ctx)
	// Serve returns when stdin closes; cancel the rest with it.
	serveCtx, cancel := context.WithCancel(gctx)
	g.Go(func() error {
		defer cancel()
		return srv.Serve(serveCtx)
	})
	if a.recorder != nil {
		g.Go(func() error {
			a.logger.Info("metrics endpoint listening", slog.String("addr", a.cfg.MetricsAddr))
			return a.recorder.Serve(serveCtx, a.cfg.MetricsAddr)
		})
	}

	a.logger.Info("flowcheck MCP server started",
		slog.String("version", version),
		slog.String("profile", a.cfg.Profile),
	)
	err = g.Wait()
	a.logger.Info("flowcheck MCP server stopped")
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
