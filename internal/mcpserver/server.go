// Package mcpserver wires tool handlers to the MCP transports and carries
// the cross-cutting concerns every tool call shares: rate limiting, call
// logging, metrics, and tracing.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/abuttoncc/wind-mcp/internal/calllog"
	"github.com/abuttoncc/wind-mcp/internal/config"
	"github.com/abuttoncc/wind-mcp/internal/log"
	"github.com/abuttoncc/wind-mcp/internal/metrics"
	"github.com/abuttoncc/wind-mcp/internal/tracing"
	"github.com/abuttoncc/wind-mcp/pkg/errors"
)

const shutdownTimeout = 5 * time.Second

// Server wraps the MCP server with the shared tool-call plumbing.
type Server struct {
	mcpServer *server.MCPServer
	name      string
	version   string
	cfg       config.Server
	logger    *slog.Logger
	limiter   *rate.Limiter
	callLog   *calllog.Logger
	metrics   *metrics.Metrics
	tracer    *tracing.Provider

	toolNames []string

	// healthFn supplies the adapter-specific /healthz payload.
	healthFn func(ctx context.Context) any
}

// Options configures a Server. CallLog, Metrics, and Tracer may be nil.
type Options struct {
	Name    string
	Version string
	Config  config.Server
	Logger  *slog.Logger
	CallLog *calllog.Logger
	Metrics *metrics.Metrics
	Tracer  *tracing.Provider

	// CallsPerMinute bounds tool call throughput. Zero uses the default.
	CallsPerMinute int
}

// New creates a Server. Tools are registered afterwards via AddTool.
func New(opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.CallsPerMinute <= 0 {
		opts.CallsPerMinute = 100
	}
	if opts.Logger == nil {
		opts.Logger = log.New(nil)
	}

	perSecond := rate.Limit(float64(opts.CallsPerMinute) / 60.0)

	return &Server{
		mcpServer: server.NewMCPServer(opts.Name, opts.Version),
		name:      opts.Name,
		version:   opts.Version,
		cfg:       opts.Config,
		logger:    opts.Logger,
		limiter:   rate.NewLimiter(perSecond, opts.CallsPerMinute),
		callLog:   opts.CallLog,
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
	}
}

// AddTool registers a tool with the shared instrumentation applied.
func (s *Server) AddTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.toolNames = append(s.toolNames, tool.Name)
	s.mcpServer.AddTool(tool, s.instrument(tool.Name, handler))
}

// ToolNames returns the registered tool names in registration order.
func (s *Server) ToolNames() []string {
	out := make([]string, len(s.toolNames))
	copy(out, s.toolNames)
	return out
}

// SetHealthFunc installs the payload builder for the /healthz endpoint.
func (s *Server) SetHealthFunc(fn func(ctx context.Context) any) {
	s.healthFn = fn
}

// instrument wraps a handler with rate limiting, call logging, metrics,
// and a span per invocation.
func (s *Server) instrument(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !s.limiter.Allow() {
			s.logger.Warn("rate limit exceeded", slog.String(log.ToolKey, tool))
			if s.metrics != nil {
				s.metrics.ToolCalls.WithLabelValues(tool, "rate_limited").Inc()
			}
			return errorResponse("Rate limit exceeded. Please try again later."), nil
		}

		if s.callLog != nil {
			if err := s.callLog.Record(tool, request.GetArguments()); err != nil {
				s.logger.Warn("call log write failed", slog.Any("error", err))
			}
		}

		var span trace.Span
		if s.tracer != nil {
			ctx, span = s.tracer.StartToolSpan(ctx, tool)
		}

		start := time.Now()
		result, err := handler(ctx, request)
		if span != nil {
			tracing.EndToolSpan(span, err)
		}

		outcome := "success"
		if err != nil || (result != nil && result.IsError) {
			outcome = "error"
		}
		if s.metrics != nil {
			s.metrics.ObserveCall(tool, outcome, time.Since(start).Seconds())
		}
		s.logger.Info("tool call complete",
			slog.String(log.ToolKey, tool),
			slog.String("outcome", outcome),
			slog.Duration(log.DurationKey, time.Since(start)))

		return result, err
	}
}

// Run serves the configured transport until ctx is cancelled or the
// transport fails.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server",
		slog.String("name", s.name),
		slog.String("version", s.version),
		slog.String("transport", s.cfg.Transport),
		slog.Int("tools", len(s.toolNames)))

	sidecar := s.startSidecar()
	defer s.stopSidecar(sidecar)

	switch s.cfg.Transport {
	case config.TransportStdio:
		return server.ServeStdio(s.mcpServer)

	case config.TransportSSE:
		sse := server.NewSSEServer(s.mcpServer)
		return s.serveHTTP(ctx, func() error { return sse.Start(s.cfg.Addr()) }, sse.Shutdown)

	case config.TransportStreamableHTTP:
		httpServer := server.NewStreamableHTTPServer(s.mcpServer)
		return s.serveHTTP(ctx, func() error { return httpServer.Start(s.cfg.Addr()) }, httpServer.Shutdown)

	default:
		return fmt.Errorf("unsupported transport: %s", s.cfg.Transport)
	}
}

// serveHTTP runs an HTTP-based transport and shuts it down when ctx ends.
func (s *Server) serveHTTP(ctx context.Context, start func() error, shutdown func(context.Context) error) error {
	s.logger.Info("listening", slog.String("addr", s.cfg.Addr()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down transport: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("transport error: %w", err)
		}
		return nil
	}
}

// startSidecar serves /metrics and /healthz on the sidecar port. The MCP
// transports own their listener, so observability gets its own.
func (s *Server) startSidecar() *http.Server {
	port := s.sidecarPort()
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/healthz", s.handleHealthz)

	sidecar := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		s.logger.Info("observability listener started", slog.String("addr", sidecar.Addr))
		if err := sidecar.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("observability listener failed", slog.Any("error", err))
		}
	}()
	return sidecar
}

// sidecarPort resolves the observability listener port. Unset, it defaults
// to the transport port plus one on HTTP transports; stdio servers share
// their streams with the client and only get a sidecar when one is asked
// for explicitly. A negative MetricsPort disables the sidecar.
func (s *Server) sidecarPort() int {
	if s.cfg.MetricsPort != 0 {
		return s.cfg.MetricsPort
	}
	switch s.cfg.Transport {
	case config.TransportSSE, config.TransportStreamableHTTP:
		return s.cfg.Port + 1
	default:
		return 0
	}
}

func (s *Server) stopSidecar(sidecar *http.Server) {
	if sidecar == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = sidecar.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	payload := any(map[string]string{"status": "ok"})
	if s.healthFn != nil {
		payload = s.healthFn(r.Context())
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// errorResponse creates an error tool result.
func errorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// textResponse creates a success tool result.
func textResponse(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// jsonResponse marshals v as an indented JSON tool result.
func jsonResponse(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to encode result: %v", err))
	}
	return textResponse(string(data))
}

// flattenError renders internal errors as the single-line messages clients
// see. Typed errors get a stable prefix so callers can pattern-match.
func flattenError(err error) string {
	switch {
	case errors.IsConfig(err):
		return fmt.Sprintf("Configuration error: %v", err)
	case errors.IsAuth(err):
		return fmt.Sprintf("Authentication failed: %v", err)
	case errors.IsTimeout(err):
		return fmt.Sprintf("Request timed out: %v", err)
	case errors.IsUpstream(err):
		return fmt.Sprintf("Upstream service error: %v", err)
	default:
		return fmt.Sprintf("Internal error: %v", err)
	}
}
