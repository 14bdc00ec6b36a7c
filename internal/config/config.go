// Package config loads adapter configuration from the environment.
//
// A .env file in the working directory is loaded first (if present), then
// struct fields are populated from environment variables. CLI flags applied
// by the commands override both.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/abuttoncc/wind-mcp/pkg/errors"
)

// Transport names accepted by both adapters.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// Gangtise holds configuration for the Gangtise knowledge adapter.
type Gangtise struct {
	// AccessKey and SecretKey authenticate against the vendor login
	// endpoint. Both must be set for tool calls to succeed.
	AccessKey string `env:"GANGTISE_ACCESS_KEY"`
	SecretKey string `env:"GANGTISE_SECRET_KEY"`

	// TokenURL is the vendor login endpoint.
	TokenURL string `env:"GANGTISE_TOKEN_URL" envDefault:"https://open.gangtise.com/application/auth/oauth/open/loginV2"`

	// AgentURL is the vendor streaming query endpoint.
	AgentURL string `env:"GANGTISE_AGENT_URL" envDefault:"https://open.gangtise.com/application/open-ai/ai/chat/sse"`

	Server
}

// Wind holds configuration for the Wind terminal adapter.
type Wind struct {
	// BridgeURL is the local Wind terminal bridge endpoint.
	BridgeURL string `env:"WIND_BRIDGE_URL" envDefault:"http://127.0.0.1:8600"`

	// KeepaliveInterval is the poll interval for the connection monitor.
	KeepaliveInterval time.Duration `env:"WIND_KEEPALIVE_INTERVAL" envDefault:"60s"`

	// IndicatorFile optionally points to a YAML file overriding the
	// built-in indicator alias table. Hot-reloaded on change.
	IndicatorFile string `env:"WIND_INDICATOR_FILE"`

	Server
}

// Server holds settings common to both adapter processes.
type Server struct {
	// Port is the listen port for HTTP transports.
	Port int `env:"MCP_PORT" envDefault:"8080"`

	// Transport selects the MCP transport: stdio, sse, or streamable-http.
	Transport string `env:"MCP_TRANSPORT" envDefault:"sse"`

	// CallLogPath is the append-only tool call log. Empty disables it.
	CallLogPath string `env:"MCP_CALL_LOG" envDefault:"logs/tool_calls.log"`

	// MetricsPort serves /metrics and /healthz on its own listener. Unset
	// (0) it defaults to Port+1 on HTTP transports and stays off under
	// stdio; a negative value disables the sidecar entirely.
	MetricsPort int `env:"MCP_METRICS_PORT"`

	// TraceStdout enables the stdout span exporter for tool-call tracing.
	TraceStdout bool `env:"MCP_TRACE_STDOUT"`
}

// LoadDotenv loads a .env file from the working directory if one exists.
// A missing file is not an error.
func LoadDotenv() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "loading .env")
	}
	return nil
}

// LoadGangtise parses Gangtise adapter configuration from the environment.
func LoadGangtise() (*Gangtise, error) {
	if err := LoadDotenv(); err != nil {
		return nil, err
	}

	cfg := &Gangtise{}
	if err := env.Parse(cfg); err != nil {
		return nil, &errors.ConfigError{Reason: "parsing environment", Cause: err}
	}
	cfg.Transport, _ = NormalizeTransport(cfg.Transport)
	return cfg, nil
}

// LoadWind parses Wind adapter configuration from the environment.
func LoadWind() (*Wind, error) {
	if err := LoadDotenv(); err != nil {
		return nil, err
	}

	cfg := &Wind{}
	if err := env.Parse(cfg); err != nil {
		return nil, &errors.ConfigError{Reason: "parsing environment", Cause: err}
	}
	cfg.Transport, _ = NormalizeTransport(cfg.Transport)
	return cfg, nil
}

// ValidateCredentials reports whether the Gangtise key pair is present.
// Missing credentials are not fatal at startup: the server still comes up,
// but tool calls fail with an auth error until keys are provided.
func (c *Gangtise) ValidateCredentials() error {
	if c.AccessKey == "" {
		return &errors.ConfigError{Key: "GANGTISE_ACCESS_KEY", Reason: "not set"}
	}
	if c.SecretKey == "" {
		return &errors.ConfigError{Key: "GANGTISE_SECRET_KEY", Reason: "not set"}
	}
	return nil
}

// NormalizeTransport maps transport name variants to canonical names.
// The underscore spelling is accepted for compatibility with older client
// configs. Unknown values fall back to sse; the second return reports
// whether the input was recognized so callers can warn.
func NormalizeTransport(transport string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(transport)) {
	case TransportStdio:
		return TransportStdio, true
	case TransportSSE, "":
		return TransportSSE, true
	case TransportStreamableHTTP, "streamable_http":
		return TransportStreamableHTTP, true
	default:
		return TransportSSE, false
	}
}

// Addr returns the listen address for HTTP transports.
func (s Server) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
