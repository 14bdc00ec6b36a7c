package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTransport(t *testing.T) {
	tests := []struct {
		input string
		want  string
		known bool
	}{
		{"stdio", TransportStdio, true},
		{"sse", TransportSSE, true},
		{"SSE", TransportSSE, true},
		{"", TransportSSE, true},
		{"streamable-http", TransportStreamableHTTP, true},
		{"streamable_http", TransportStreamableHTTP, true},
		{"  stdio  ", TransportStdio, true},
		{"websocket", TransportSSE, false},
		{"http", TransportSSE, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, known := NormalizeTransport(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestLoadGangtiseDefaults(t *testing.T) {
	t.Setenv("GANGTISE_ACCESS_KEY", "ak")
	t.Setenv("GANGTISE_SECRET_KEY", "sk")

	cfg, err := LoadGangtise()
	require.NoError(t, err)

	assert.Equal(t, "ak", cfg.AccessKey)
	assert.Contains(t, cfg.TokenURL, "loginV2")
	assert.Contains(t, cfg.AgentURL, "chat/sse")
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, TransportSSE, cfg.Transport)
}

func TestLoadGangtiseTransportOverride(t *testing.T) {
	t.Setenv("MCP_TRANSPORT", "streamable_http")
	t.Setenv("MCP_PORT", "9001")

	cfg, err := LoadGangtise()
	require.NoError(t, err)

	assert.Equal(t, TransportStreamableHTTP, cfg.Transport)
	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, ":9001", cfg.Addr())
}

func TestLoadWindDefaults(t *testing.T) {
	cfg, err := LoadWind()
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8600", cfg.BridgeURL)
	assert.Equal(t, 60*time.Second, cfg.KeepaliveInterval)
	assert.Empty(t, cfg.IndicatorFile)
}

func TestLoadWindKeepaliveInterval(t *testing.T) {
	t.Setenv("WIND_KEEPALIVE_INTERVAL", "15s")

	cfg, err := LoadWind()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.KeepaliveInterval)
}

func TestValidateCredentials(t *testing.T) {
	cfg := &Gangtise{AccessKey: "ak", SecretKey: "sk"}
	assert.NoError(t, cfg.ValidateCredentials())

	cfg = &Gangtise{SecretKey: "sk"}
	err := cfg.ValidateCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GANGTISE_ACCESS_KEY")

	cfg = &Gangtise{AccessKey: "ak"}
	err = cfg.ValidateCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GANGTISE_SECRET_KEY")
}
