package wind

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/abuttoncc/wind-mcp/pkg/errors"
	"github.com/abuttoncc/wind-mcp/pkg/httpclient"
)

// BridgeClient implements Terminal against the local Wind bridge, the
// sidecar process that owns the vendor terminal session and exposes it
// over HTTP on localhost.
type BridgeClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewBridgeClient builds a Terminal backed by the bridge at baseURL.
func NewBridgeClient(baseURL string, logger *slog.Logger) (*BridgeClient, error) {
	// Retries apply to the idempotent status probe only; data queries are
	// POSTs and go out once.
	client, err := httpclient.New(httpclient.Config{
		Timeout:       60 * time.Second,
		RetryAttempts: 2,
		RetryBackoff:  100 * time.Millisecond,
		MaxBackoff:    2 * time.Second,
		UserAgent:     "wind-mcp/1.0",
	})
	if err != nil {
		return nil, fmt.Errorf("creating bridge client: %w", err)
	}
	return &BridgeClient{baseURL: baseURL, client: client, logger: logger}, nil
}

type bridgeStatus struct {
	Connected bool `json:"connected"`
}

// call posts args to one bridge endpoint and decodes the result envelope.
func (b *BridgeClient) call(ctx context.Context, endpoint string, args map[string]any) (*DataResult, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, errors.Wrap(err, "encoding bridge request")
	}

	url := b.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "building bridge request")
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &errors.UpstreamError{Service: "wind-bridge", Message: "bridge request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &errors.UpstreamError{Service: "wind-bridge", StatusCode: resp.StatusCode, Message: "bridge rejected request"}
	}

	var result DataResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &errors.DecodeError{Input: endpoint, Cause: err}
	}

	b.logger.Debug("bridge call complete",
		slog.String("endpoint", endpoint),
		slog.Int("error_code", result.ErrorCode),
		slog.Duration("duration", time.Since(start)))
	return &result, nil
}

// Start asks the bridge to (re)open the terminal session.
func (b *BridgeClient) Start(ctx context.Context) error {
	_, err := b.call(ctx, "/api/start", map[string]any{})
	return err
}

// IsConnected polls the bridge session status. Any transport failure counts
// as disconnected.
func (b *BridgeClient) IsConnected(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/status", nil)
	if err != nil {
		return false
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var status bridgeStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false
	}
	return status.Connected
}

func (b *BridgeClient) WSD(ctx context.Context, codes, fields, beginTime, endTime, options string) (*DataResult, error) {
	return b.call(ctx, "/api/wsd", map[string]any{
		"codes": codes, "fields": fields,
		"beginTime": beginTime, "endTime": endTime, "options": options,
	})
}

func (b *BridgeClient) WSS(ctx context.Context, codes, fields, options string) (*DataResult, error) {
	return b.call(ctx, "/api/wss", map[string]any{
		"codes": codes, "fields": fields, "options": options,
	})
}

func (b *BridgeClient) WSES(ctx context.Context, codes, fields, beginTime, endTime, options string) (*DataResult, error) {
	return b.call(ctx, "/api/wses", map[string]any{
		"codes": codes, "fields": fields,
		"beginTime": beginTime, "endTime": endTime, "options": options,
	})
}

func (b *BridgeClient) TDays(ctx context.Context, beginTime, endTime, options string) (*DataResult, error) {
	return b.call(ctx, "/api/tdays", map[string]any{
		"beginTime": beginTime, "endTime": endTime, "options": options,
	})
}

func (b *BridgeClient) TDaysOffset(ctx context.Context, offset int, beginTime, options string) (*DataResult, error) {
	return b.call(ctx, "/api/tdaysoffset", map[string]any{
		"offset": offset, "beginTime": beginTime, "options": options,
	})
}

func (b *BridgeClient) TDaysCount(ctx context.Context, beginTime, endTime, options string) (*DataResult, error) {
	return b.call(ctx, "/api/tdayscount", map[string]any{
		"beginTime": beginTime, "endTime": endTime, "options": options,
	})
}
