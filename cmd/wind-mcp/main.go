// Command wind-mcp serves Wind terminal data functions as MCP tools.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/abuttoncc/wind-mcp/internal/calllog"
	"github.com/abuttoncc/wind-mcp/internal/config"
	"github.com/abuttoncc/wind-mcp/internal/log"
	"github.com/abuttoncc/wind-mcp/internal/mcpserver"
	"github.com/abuttoncc/wind-mcp/internal/metrics"
	"github.com/abuttoncc/wind-mcp/internal/tracing"
	"github.com/abuttoncc/wind-mcp/internal/wind"
)

var version = "1.0.0"

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		port      int
		transport string
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:   "wind-mcp",
		Short: "MCP server for Wind terminal data",
		Long: `Serve Wind terminal data functions (wsd, wss, wses, trading-calendar
queries) as MCP tools.

The adapter talks to the local Wind bridge (WIND_BRIDGE_URL), which owns
the terminal session. A keepalive monitor attempts one automatic reconnect
per outage and otherwise waits for manual login, so the terminal never
spawns a login-dialog storm.

Transports: sse (default), streamable-http, stdio.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, port, transport, logLevel)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Listen port for HTTP transports (overrides MCP_PORT)")
	cmd.Flags().StringVar(&transport, "transport", "", "Transport: stdio, sse, or streamable-http (overrides MCP_TRANSPORT)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Logging verbosity: debug, info, warn, error (overrides LOG_LEVEL)")

	return cmd
}

func run(cmd *cobra.Command, port int, transport, logLevel string) error {
	cfg, err := config.LoadWind()
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Port = port
	}
	if transport != "" {
		normalized, known := config.NormalizeTransport(transport)
		cfg.Transport = normalized
		if !known {
			fmt.Fprintf(os.Stderr, "Unsupported transport %q, falling back to sse\n", transport)
		}
	}

	logCfg := log.FromEnv()
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	logger := log.New(logCfg).With(slog.String(log.AdapterKey, "wind"))

	m := metrics.New("wind")

	tracer, err := tracing.New("wind-mcp", cfg.TraceStdout)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	var callLog *calllog.Logger
	if cfg.CallLogPath != "" {
		callLog, err = calllog.New(cfg.CallLogPath)
		if err != nil {
			return fmt.Errorf("opening call log: %w", err)
		}
		defer callLog.Close()
	}

	terminal, err := wind.NewBridgeClient(cfg.BridgeURL, logger)
	if err != nil {
		return err
	}

	indicators := wind.NewIndicators(logger)
	if cfg.IndicatorFile != "" {
		if err := indicators.Watch(cfg.IndicatorFile); err != nil {
			logger.Warn("indicator override file unavailable, using built-in table",
				slog.String("path", cfg.IndicatorFile),
				slog.Any("error", err))
		} else {
			defer indicators.Close()
		}
	}

	srv := mcpserver.New(mcpserver.Options{
		Name:    "wind-mcp",
		Version: version,
		Config:  cfg.Server,
		Logger:  logger,
		CallLog: callLog,
		Metrics: m,
		Tracer:  tracer,
	})
	mcpserver.WindTools(srv, terminal, indicators)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if !terminal.IsConnected(ctx) {
		logger.Warn("terminal not connected at startup, data tools may fail until login")
	}

	keepalive := wind.NewKeepalive(terminal, cfg.KeepaliveInterval, logger, m)
	keepalive.Start(ctx)
	defer keepalive.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	logger.Info("registered tools", slog.Any("tools", srv.ToolNames()))
	if callLog != nil {
		_ = callLog.Record("server_start", map[string]any{"tools": srv.ToolNames()})
	}
	return srv.Run(ctx)
}
