package errors

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

func TestConfigError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ConfigError
		want string
	}{
		{
			name: "with key",
			err:  &ConfigError{Key: "GANGTISE_ACCESS_KEY", Reason: "not set"},
			want: "config error at GANGTISE_ACCESS_KEY: not set",
		},
		{
			name: "without key",
			err:  &ConfigError{Reason: "credentials missing"},
			want: "config error: credentials missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthError_Error(t *testing.T) {
	err := &AuthError{
		StatusCode: 401,
		Code:       "100001",
		Message:    "bad credentials",
	}

	got := err.Error()
	for _, part := range []string{"HTTP 401", "100001", "bad credentials"} {
		if !strings.Contains(got, part) {
			t.Errorf("Error() = %q, missing %q", got, part)
		}
	}
}

func TestUpstreamError_Error(t *testing.T) {
	err := &UpstreamError{
		Service:    "gangtise",
		StatusCode: 502,
		Message:    "bad gateway",
		RequestID:  "req-123",
	}

	got := err.Error()
	for _, part := range []string{"gangtise", "HTTP 502", "bad gateway", "req-123"} {
		if !strings.Contains(got, part) {
			t.Errorf("Error() = %q, missing %q", got, part)
		}
	}
}

func TestUnwrap(t *testing.T) {
	cause := io.ErrUnexpectedEOF

	tests := []struct {
		name string
		err  error
	}{
		{"auth", &AuthError{Message: "login failed", Cause: cause}},
		{"upstream", &UpstreamError{Service: "wind-bridge", Message: "down", Cause: cause}},
		{"config", &ConfigError{Reason: "bad", Cause: cause}},
		{"decode", &DecodeError{Input: "data: {", Cause: cause}},
		{"timeout", &TimeoutError{Operation: "query", Duration: time.Second, Cause: cause}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, cause) {
				t.Errorf("errors.Is(%v, cause) = false, want true", tt.err)
			}
		})
	}
}

func TestTypePredicates(t *testing.T) {
	authErr := fmt.Errorf("wrapped: %w", &AuthError{Message: "nope"})
	if !IsAuth(authErr) {
		t.Error("IsAuth should see through wrapping")
	}
	if IsUpstream(authErr) {
		t.Error("IsUpstream should not match an AuthError")
	}

	upErr := Wrap(&UpstreamError{Service: "gangtise", Message: "500"}, "query")
	if !IsUpstream(upErr) {
		t.Error("IsUpstream should see through Wrap")
	}

	cfgErr := &ConfigError{Key: "MCP_PORT", Reason: "not a number"}
	if !IsConfig(cfgErr) {
		t.Error("IsConfig should match a ConfigError")
	}
}

func TestWrap_NilErr(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}
}
