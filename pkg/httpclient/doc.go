// Package httpclient provides a unified HTTP client factory with consistent
// timeout, retry, and logging behavior for both vendor adapters.
//
// Clients are created with secure defaults:
//   - Automatic retry with exponential backoff and jitter
//   - Request logging with sanitized URLs (sensitive parameters redacted)
//   - User-Agent header injection
//   - TLS 1.2 minimum (TLS 1.3 preferred)
//   - Connection pooling
//
// Usage:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.UserAgent = "wind-mcp/1.0"
//	client, err := httpclient.New(cfg)
//
// Retries cover 5xx, 408, 429 (honoring Retry-After) and transient network
// errors, and apply only to idempotent methods unless
// AllowNonIdempotentRetry is set. The streaming query path disables retries
// entirely: a stream is a single fetch-parse-return pass.
package httpclient
