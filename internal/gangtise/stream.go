package gangtise

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abuttoncc/wind-mcp/internal/log"
	"github.com/abuttoncc/wind-mcp/pkg/errors"
)

const (
	// researchMode is the only mode the deep-research endpoint serves.
	researchMode = "deep_research"

	// answerPhase marks the stream events whose deltas form the answer.
	// Other phases (thinking, searching) are progress chatter.
	answerPhase = "answer"

	maxAnswerChars = 25000

	noAnswerMessage  = "No valid answer was received from the knowledge service. Please retry or rephrase the question."
	truncationNotice = "\n\n[Note: answer truncated due to length]"
)

// deltaFallback extracts delta values from events that fail JSON decoding.
// The vendor occasionally emits events with unescaped control characters;
// losing those deltas would leave holes in the answer.
var deltaFallback = regexp.MustCompile(`"delta":"([^"]*)"`)

type queryRequest struct {
	Text         string       `json:"text"`
	Mode         string       `json:"mode"`
	AskChatParam askChatParam `json:"askChatParam"`
}

type askChatParam struct {
	Iter int `json:"iter"`
}

type streamEvent struct {
	Phase  string          `json:"phase"`
	Result json.RawMessage `json:"result"`
}

type streamResult struct {
	Delta string `json:"delta"`
}

// Query sends one deep-research question and returns the assembled answer.
// iterations controls how many reasoning rounds the vendor runs. The request
// is never retried; a failed stream surfaces as an error and the caller
// decides whether to ask again.
func (c *Client) Query(ctx context.Context, text string, iterations int) (string, error) {
	requestID := uuid.NewString()
	logger := c.logger.With(slog.String(log.RequestIDKey, requestID))

	token, err := c.Token(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(queryRequest{
		Text:         text,
		Mode:         researchMode,
		AskChatParam: askChatParam{Iter: iterations},
	})
	if err != nil {
		return "", errors.Wrap(err, "encoding query request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AgentURL, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "building query request")
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	logger.Info("sending query",
		slog.String("endpoint", c.cfg.AgentURL),
		slog.Int("iterations", iterations),
		slog.Int("query_chars", len([]rune(text))))

	if c.metrics != nil {
		c.metrics.UpstreamInFlight.Inc()
		defer c.metrics.UpstreamInFlight.Dec()
	}

	start := c.now()
	resp, err := c.queryClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &errors.TimeoutError{Operation: "gangtise query", Duration: time.Since(start), Cause: err}
		}
		return "", &errors.UpstreamError{Service: "gangtise", Message: "query request failed", RequestID: requestID, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &errors.UpstreamError{Service: "gangtise", StatusCode: resp.StatusCode, Message: "query rejected", RequestID: requestID}
	}

	logger.Debug("reading event stream")
	fragments, err := collectAnswerFragments(resp.Body, logger)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &errors.TimeoutError{Operation: "gangtise stream read", Duration: time.Since(start), Cause: err}
		}
		return "", &errors.UpstreamError{Service: "gangtise", Message: "reading event stream", RequestID: requestID, Cause: err}
	}

	logger.Info("stream complete",
		slog.Int("fragments", len(fragments)),
		slog.Duration(log.DurationKey, time.Since(start)))

	if len(fragments) == 0 {
		logger.Warn("stream contained no answer fragments")
		return noAnswerMessage, nil
	}

	answer := strings.Join(fragments, "")
	answer = unescapeUnicode(answer, logger)
	return truncateAnswer(answer, logger), nil
}

// collectAnswerFragments scans an SSE body and returns the answer-phase
// deltas in arrival order. Malformed events are skipped, not fatal: the
// stream as a whole is still useful when individual events are broken.
func collectAnswerFragments(r io.Reader, logger *slog.Logger) ([]string, error) {
	var fragments []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(line[len("data:"):])
		if data == "" {
			continue
		}

		if delta, ok := extractDelta(data, logger); ok {
			fragments = append(fragments, delta)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return fragments, nil
}

// extractDelta pulls the delta from one event payload. JSON is the normal
// path; the regex fallback recovers deltas from payloads the decoder
// rejects.
func extractDelta(data string, logger *slog.Logger) (string, bool) {
	if strings.HasPrefix(data, "{") {
		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err == nil {
			if event.Phase != answerPhase || len(event.Result) == 0 {
				return "", false
			}
			var result streamResult
			if err := json.Unmarshal(event.Result, &result); err != nil {
				return "", false
			}
			return result.Delta, result.Delta != ""
		}
		logger.Debug("event failed JSON decode, trying raw extraction")
	}

	if !strings.Contains(data, `"delta":`) {
		return "", false
	}
	if m := deltaFallback.FindStringSubmatch(data); m != nil && m[1] != "" {
		return m[1], true
	}
	return "", false
}

// unescapeUnicode decodes \uXXXX escape sequences that some vendor events
// carry double-encoded. Answers that fail to decode are kept as-is.
func unescapeUnicode(s string, logger *slog.Logger) string {
	if !strings.Contains(s, `\u`) {
		return s
	}

	quoted := `"` + strings.NewReplacer(`"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`).Replace(s) + `"`
	decoded, err := strconv.Unquote(quoted)
	if err != nil {
		logger.Warn("unicode unescape failed, keeping raw answer", slog.Any("error", err))
		return s
	}
	return decoded
}

// truncateAnswer caps the answer length, counting characters rather than
// bytes so multi-byte text is not cut mid-rune.
func truncateAnswer(answer string, logger *slog.Logger) string {
	runes := []rune(answer)
	if len(runes) <= maxAnswerChars {
		return answer
	}
	logger.Warn("answer exceeds length cap, truncating",
		slog.Int("chars", len(runes)),
		slog.Int("cap", maxAnswerChars))
	return string(runes[:maxAnswerChars]) + truncationNotice
}
