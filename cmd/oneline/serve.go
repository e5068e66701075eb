package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/oneline/internal/boot"
	"github.com/jkaninda/oneline/internal/gateway"
	"github.com/jkaninda/oneline/internal/gateway/httpapi"
	"github.com/jkaninda/oneline/internal/gateway/mcpserver"
	"github.com/jkaninda/oneline/internal/ratelimit"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the commands over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the commands as MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return serveGateway(func(rt *boot.Runtime) (gateway.Gateway, error) {
			return mcpserver.New(rt.Commands, version, rt.Logger)
		})
	},
}

func init() {
	// Registered on both root and serve so `oneline --port :9090` works too.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&servePort, "port", "", "override the HTTP listen address (e.g. :8080)")
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	return serveGateway(func(rt *boot.Runtime) (gateway.Gateway, error) {
		httpCfg := rt.Manifest.Gateway.HTTP
		if servePort != "" {
			httpCfg.ListenAddr = servePort
		}
		cfg := httpapi.Config{
			ListenAddr:    httpCfg.ListenAddr,
			EnableDocs:    httpCfg.EnableDocs,
			APIKeys:       rt.Settings.APIKeys,
			Version:       version,
			HealthChecker: rt.Observability.Health,
			RateLimit: ratelimit.Config{
				RequestsPerMinute: httpCfg.RequestsPerMinute,
				BurstSize:         httpCfg.BurstSize,
			},
		}
		if m := rt.Observability.MetricsOrNil(); m != nil {
			cfg.Metrics = m
			cfg.MetricsRegistry = m.Registry
			cfg.MetricsPath = rt.Manifest.Observability.Metrics.Path
		}
		if rt.Observability.Tracer != nil {
			cfg.Tracer = rt.Observability.TracerOrNoop()
		}
		return httpapi.NewGateway(cfg, rt.Commands, rt.Logger), nil
	})
}

// serveGateway boots, starts the gateway built by build and blocks until a
// signal arrives or the gateway exits.
func serveGateway(build func(*boot.Runtime) (gateway.Gateway, error)) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := startRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.Logger

	gw, err := build(rt)
	if err != nil {
		return fmt.Errorf("building gateway: %w", err)
	}

	errs := make(chan error, 1)
	go func() { errs <- gw.Start(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errs:
		if runErr != nil {
			logger.Error("gateway exited with error", slog.String("error", runErr.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Error("stopping gateway", slog.String("error", err.Error()))
	}
	return runErr
}
