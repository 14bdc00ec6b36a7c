// Package calllog appends a plain-text record of every tool invocation.
//
// The log mirrors what operators grep for when reconciling client reports
// against server behavior: when a tool ran, which tool, and with what
// arguments. It is append-only and survives restarts.
package calllog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger writes tool call records to an append-only destination.
type Logger struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// New opens (or creates) the call log at path, creating parent directories
// as needed.
func New(path string) (*Logger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating call log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening call log: %w", err)
	}

	return &Logger{w: f, closer: f}, nil
}

// NewWithWriter returns a Logger writing to w. Used in tests.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{w: w}
}

// Record appends one call record. Arguments are rendered as compact JSON;
// values that fail to marshal are recorded with a placeholder rather than
// dropping the record.
func (l *Logger) Record(tool string, args map[string]any) error {
	rendered, err := json.Marshal(args)
	if err != nil {
		rendered = []byte(`"<unserializable arguments>"`)
	}

	line := fmt.Sprintf("[%s] tool=%s args=%s\n",
		time.Now().UTC().Format(time.RFC3339), tool, rendered)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.w, line); err != nil {
		return fmt.Errorf("writing call log: %w", err)
	}
	return nil
}

// Close releases the underlying file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
