// Command gangtise-mcp serves the Gangtise knowledge agent as MCP tools.
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
	"github.com/abuttoncc/wind-mcp/internal/gangtise"
	"github.com/abuttoncc/wind-mcp/internal/log"
	"github.com/abuttoncc/wind-mcp/internal/mcpserver"
	"github.com/abuttoncc/wind-mcp/internal/metrics"
	"github.com/abuttoncc/wind-mcp/internal/tracing"
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
		Use:   "gangtise-mcp",
		Short: "MCP server for the Gangtise knowledge agent",
		Long: `Serve the Gangtise deep-research knowledge agent as MCP tools.

The server relays questions to the vendor's streaming API and returns
assembled answers. Credentials come from GANGTISE_ACCESS_KEY and
GANGTISE_SECRET_KEY (a .env file in the working directory is honored).

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
	cfg, err := config.LoadGangtise()
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
	logger := log.New(logCfg).With(slog.String(log.AdapterKey, "gangtise"))

	m := metrics.New("gangtise")

	tracer, err := tracing.New("gangtise-mcp", cfg.TraceStdout)
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

	client, err := gangtise.NewClient(cfg, logger, m)
	if err != nil {
		return err
	}

	srv := mcpserver.New(mcpserver.Options{
		Name:    "gangtise-mcp",
		Version: version,
		Config:  cfg.Server,
		Logger:  logger,
		CallLog: callLog,
		Metrics: m,
		Tracer:  tracer,
	})
	mcpserver.GangtiseTools(srv, client)

	// Verify credentials at startup. The server still comes up on
	// failure so operators can fix keys without a restart loop.
	preFlight(cmd.Context(), cfg, client, logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

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

// preFlight checks credentials by fetching a token once. Failures are
// logged, not fatal: tool calls will surface the same error.
func preFlight(ctx context.Context, cfg *config.Gangtise, client *gangtise.Client, logger *slog.Logger) {
	if err := cfg.ValidateCredentials(); err != nil {
		logger.Warn("credentials not configured, tool calls will fail until they are set",
			slog.Any("error", err))
		return
	}
	if _, err := client.Token(ctx); err != nil {
		logger.Warn("credential verification failed, server will start anyway",
			slog.Any("error", err))
		return
	}
	logger.Info("credential verification succeeded")
}
