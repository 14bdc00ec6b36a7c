// Package gangtise implements the client for the Gangtise knowledge API:
// token acquisition with caching, and the streaming deep-research query.
package gangtise

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/abuttoncc/wind-mcp/internal/config"
	"github.com/abuttoncc/wind-mcp/internal/log"
	"github.com/abuttoncc/wind-mcp/internal/metrics"
	"github.com/abuttoncc/wind-mcp/pkg/errors"
	"github.com/abuttoncc/wind-mcp/pkg/httpclient"
)

const (
	// Tokens are refreshed this long before their reported expiry so a
	// query never goes out with a token about to lapse mid-stream.
	tokenRefreshMargin = 60 * time.Second

	// Expiry the vendor applies when the login response omits expiresIn.
	defaultExpiresIn = 3600 * time.Second

	loginTimeout = 10 * time.Second
	queryTimeout = 180 * time.Second

	// Success code in the vendor's response envelope.
	vendorOKCode = "000000"
)

// Client talks to the Gangtise API. It owns the token cache; create one
// Client per server process and share it across tool handlers.
type Client struct {
	cfg     *config.Gangtise
	logger  *slog.Logger
	metrics *metrics.Metrics

	loginClient *http.Client
	queryClient *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	// now is stubbed in tests.
	now func() time.Time
}

// NewClient builds a Client from configuration. The metrics set may be nil.
func NewClient(cfg *config.Gangtise, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	loginClient, err := httpclient.New(httpclient.Config{
		Timeout:       loginTimeout,
		RetryAttempts: 0,
		UserAgent:     "gangtise-mcp/1.0",
	})
	if err != nil {
		return nil, fmt.Errorf("creating login client: %w", err)
	}

	// The query client must not retry: replaying a deep-research request
	// doubles vendor cost and the stream is not resumable.
	queryClient, err := httpclient.New(httpclient.Config{
		Timeout:       queryTimeout,
		RetryAttempts: 0,
		UserAgent:     "gangtise-mcp/1.0",
	})
	if err != nil {
		return nil, fmt.Errorf("creating query client: %w", err)
	}

	return &Client{
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		loginClient: loginClient,
		queryClient: queryClient,
		now:         time.Now,
	}, nil
}

type loginRequest struct {
	AccessKey       string `json:"accessKey"`
	SecretAccessKey string `json:"secretAccessKey"`
}

type loginResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int64  `json:"expiresIn"`
	} `json:"data"`
}

// Token returns a valid access token, reusing the cached one while it has
// more than the refresh margin left. A failed login is returned as an
// AuthError without retry; the next call attempts a fresh login.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.expiresAt.Add(-tokenRefreshMargin).After(c.now()) {
		c.logger.Debug("using cached token")
		return c.token, nil
	}

	if err := c.cfg.ValidateCredentials(); err != nil {
		return "", &errors.AuthError{Endpoint: c.cfg.TokenURL, Message: "credentials not configured", Cause: err}
	}

	token, expiresIn, err := c.login(ctx)
	if err != nil {
		if c.metrics != nil {
			c.metrics.TokenRefreshes.WithLabelValues("error").Inc()
		}
		return "", err
	}

	c.token = token
	c.expiresAt = c.now().Add(expiresIn)
	if c.metrics != nil {
		c.metrics.TokenRefreshes.WithLabelValues("success").Inc()
	}
	c.logger.Info("obtained new token",
		slog.String("token", log.SanitizeAPIKey(token)),
		slog.Duration("expires_in", expiresIn))
	return token, nil
}

func (c *Client) login(ctx context.Context) (string, time.Duration, error) {
	body, err := json.Marshal(loginRequest{
		AccessKey:       c.cfg.AccessKey,
		SecretAccessKey: c.cfg.SecretKey,
	})
	if err != nil {
		return "", 0, &errors.AuthError{Endpoint: c.cfg.TokenURL, Message: "encoding login request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, bytes.NewReader(body))
	if err != nil {
		return "", 0, &errors.AuthError{Endpoint: c.cfg.TokenURL, Message: "building login request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("requesting new token", slog.String("endpoint", c.cfg.TokenURL))
	resp, err := c.loginClient.Do(req)
	if err != nil {
		return "", 0, &errors.AuthError{Endpoint: c.cfg.TokenURL, Message: "login request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, &errors.AuthError{Endpoint: c.cfg.TokenURL, StatusCode: resp.StatusCode, Message: "login rejected"}
	}

	var parsed loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", 0, &errors.AuthError{Endpoint: c.cfg.TokenURL, Message: "decoding login response", Cause: err}
	}
	if parsed.Code != vendorOKCode {
		return "", 0, &errors.AuthError{Endpoint: c.cfg.TokenURL, Code: parsed.Code, Message: parsed.Msg}
	}
	if parsed.Data.AccessToken == "" {
		return "", 0, &errors.AuthError{Endpoint: c.cfg.TokenURL, Code: parsed.Code, Message: "empty accessToken in login response"}
	}

	expiresIn := defaultExpiresIn
	if parsed.Data.ExpiresIn > 0 {
		expiresIn = time.Duration(parsed.Data.ExpiresIn) * time.Second
	}
	return parsed.Data.AccessToken, expiresIn, nil
}

// InvalidateToken drops the cached token so the next call logs in again.
func (c *Client) InvalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}
