package gangtise

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abuttoncc/wind-mcp/internal/config"
	"github.com/abuttoncc/wind-mcp/pkg/errors"
)

// sseServer serves a canned login plus a query endpoint emitting the given
// SSE lines verbatim.
func sseServer(t *testing.T, lines []string) (*httptest.Server, *config.Gangtise) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": "000000",
			"data": map[string]any{"accessToken": "tok", "expiresIn": 3600},
		})
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n", line)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, &config.Gangtise{
		AccessKey: "ak",
		SecretKey: "sk",
		TokenURL:  srv.URL + "/login",
		AgentURL:  srv.URL + "/query",
	}
}

func answerEvent(delta string) string {
	return fmt.Sprintf(`data: {"phase":"answer","result":{"delta":%q}}`, delta)
}

func TestQueryConcatenatesAnswerDeltas(t *testing.T) {
	_, cfg := sseServer(t, []string{
		`data: {"phase":"thinking","result":{"delta":"ignored"}}`,
		answerEvent("foo"),
		"",
		": comment line",
		answerEvent("bar"),
		`data: {"phase":"search","result":{"delta":"also ignored"}}`,
	})

	c := newTestClient(t, cfg)
	answer, err := c.Query(context.Background(), "what is foo?", 3)
	require.NoError(t, err)
	assert.Equal(t, "foobar", answer)
}

func TestQueryNoAnswerFragments(t *testing.T) {
	_, cfg := sseServer(t, []string{
		`data: {"phase":"thinking","result":{"delta":"hmm"}}`,
		`data: {"phase":"done"}`,
	})

	c := newTestClient(t, cfg)
	answer, err := c.Query(context.Background(), "anything", 1)
	require.NoError(t, err)
	assert.Equal(t, noAnswerMessage, answer)
}

func TestQueryRegexFallbackOnBrokenEvent(t *testing.T) {
	_, cfg := sseServer(t, []string{
		answerEvent("good "),
		// Truncated JSON the decoder rejects; the delta is still extractable.
		`data: {"phase":"answer","result":{"delta":"recovered"`,
	})

	c := newTestClient(t, cfg)
	answer, err := c.Query(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Equal(t, "good recovered", answer)
}

func TestQueryUsesCachedToken(t *testing.T) {
	logins := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		logins++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": "000000",
			"data": map[string]any{"accessToken": "tok", "expiresIn": 3600},
		})
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, answerEvent("ok"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, &config.Gangtise{
		AccessKey: "ak", SecretKey: "sk",
		TokenURL: srv.URL + "/login", AgentURL: srv.URL + "/query",
	})

	for i := 0; i < 3; i++ {
		_, err := c.Query(context.Background(), "q", 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, logins)
}

func TestQueryUpstreamHTTPError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": "000000",
			"data": map[string]any{"accessToken": "tok"},
		})
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, &config.Gangtise{
		AccessKey: "ak", SecretKey: "sk",
		TokenURL: srv.URL + "/login", AgentURL: srv.URL + "/query",
	})

	_, err := c.Query(context.Background(), "q", 3)
	require.Error(t, err)

	var upErr *errors.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusServiceUnavailable, upErr.StatusCode)
	assert.NotEmpty(t, upErr.RequestID)
}

func TestQueryDeadlineSurfacesTimeoutError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": "000000",
			"data": map[string]any{"accessToken": "tok"},
		})
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server detects the client disconnect and
		// cancels the request context; otherwise Close deadlocks on this
		// handler.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, &config.Gangtise{
		AccessKey: "ak", SecretKey: "sk",
		TokenURL: srv.URL + "/login", AgentURL: srv.URL + "/query",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Query(ctx, "q", 1)
	require.Error(t, err)

	var toErr *errors.TimeoutError
	require.True(t, errors.As(err, &toErr))
	assert.Equal(t, "gangtise query", toErr.Operation)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestQuerySendsExpectedRequestBody(t *testing.T) {
	var got queryRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": "000000",
			"data": map[string]any{"accessToken": "tok"},
		})
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		fmt.Fprintln(w, answerEvent("ok"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, &config.Gangtise{
		AccessKey: "ak", SecretKey: "sk",
		TokenURL: srv.URL + "/login", AgentURL: srv.URL + "/query",
	})

	_, err := c.Query(context.Background(), "how deep is the lake?", 5)
	require.NoError(t, err)
	assert.Equal(t, "how deep is the lake?", got.Text)
	assert.Equal(t, researchMode, got.Mode)
	assert.Equal(t, 5, got.AskChatParam.Iter)
}

func TestExtractDelta(t *testing.T) {
	logger := testLogger()

	tests := []struct {
		name string
		data string
		want string
		ok   bool
	}{
		{"answer phase", `{"phase":"answer","result":{"delta":"hi"}}`, "hi", true},
		{"other phase", `{"phase":"thinking","result":{"delta":"hi"}}`, "", false},
		{"empty delta", `{"phase":"answer","result":{"delta":""}}`, "", false},
		{"missing result", `{"phase":"answer"}`, "", false},
		{"broken json with delta", `{"phase":"answer","result":{"delta":"rec"`, "rec", true},
		{"non-json without delta", `event: ping`, "", false},
		{"non-json with delta", `garbage "delta":"x" trailing`, "x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractDelta(tt.data, logger)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnescapeUnicode(t *testing.T) {
	logger := testLogger()

	assert.Equal(t, "你好", unescapeUnicode(`你好`, logger))
	assert.Equal(t, "价格 up 好", unescapeUnicode(`价格 up 好`, logger))
	assert.Equal(t, "plain text", unescapeUnicode("plain text", logger))
	assert.Equal(t, "a \"quote\" and 你", unescapeUnicode(`a "quote" and 你`, logger))
	assert.Equal(t, "line1\nline2 好", unescapeUnicode("line1\nline2 \\u597d", logger))

	// Broken escape keeps the original.
	broken := `bad \uZZZZ escape`
	assert.Equal(t, broken, unescapeUnicode(broken, logger))
}

func TestQueryUnescapesDoubleEncodedAnswer(t *testing.T) {
	// The JSON layer decodes "\\u4f60" to a literal 你 in the delta;
	// the assembled answer still carries the escapes and gets a second pass.
	_, cfg := sseServer(t, []string{
		`data: {"phase":"answer","result":{"delta":"\\u4f60"}}`,
		`data: {"phase":"answer","result":{"delta":"\\u597d"}}`,
	})

	c := newTestClient(t, cfg)
	answer, err := c.Query(context.Background(), "greeting", 1)
	require.NoError(t, err)
	assert.Equal(t, "你好", answer)
}

func TestTruncateAnswer(t *testing.T) {
	logger := testLogger()

	short := strings.Repeat("a", 100)
	assert.Equal(t, short, truncateAnswer(short, logger))

	exact := strings.Repeat("b", maxAnswerChars)
	assert.Equal(t, exact, truncateAnswer(exact, logger))

	long := strings.Repeat("字", maxAnswerChars+500)
	got := truncateAnswer(long, logger)
	assert.True(t, strings.HasSuffix(got, truncationNotice))
	assert.Equal(t, maxAnswerChars, len([]rune(strings.TrimSuffix(got, truncationNotice))))
}
