package wind

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/abuttoncc/wind-mcp/internal/log"
)

// fakeTerminal scripts connectivity per poll and counts reconnect attempts.
type fakeTerminal struct {
	connected  []bool
	poll       int
	startCalls int
	startErr   error
}

func (f *fakeTerminal) IsConnected(ctx context.Context) bool {
	if f.poll >= len(f.connected) {
		return f.connected[len(f.connected)-1]
	}
	v := f.connected[f.poll]
	f.poll++
	return v
}

func (f *fakeTerminal) Start(ctx context.Context) error {
	f.startCalls++
	return f.startErr
}

func (f *fakeTerminal) WSD(ctx context.Context, codes, fields, beginTime, endTime, options string) (*DataResult, error) {
	return nil, nil
}
func (f *fakeTerminal) WSS(ctx context.Context, codes, fields, options string) (*DataResult, error) {
	return nil, nil
}
func (f *fakeTerminal) WSES(ctx context.Context, codes, fields, beginTime, endTime, options string) (*DataResult, error) {
	return nil, nil
}
func (f *fakeTerminal) TDays(ctx context.Context, beginTime, endTime, options string) (*DataResult, error) {
	return nil, nil
}
func (f *fakeTerminal) TDaysOffset(ctx context.Context, offset int, beginTime, options string) (*DataResult, error) {
	return nil, nil
}
func (f *fakeTerminal) TDaysCount(ctx context.Context, beginTime, endTime, options string) (*DataResult, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return log.New(&log.Config{Level: "error", Format: log.FormatText, Output: io.Discard})
}

func TestKeepaliveConnectedClearsLatch(t *testing.T) {
	term := &fakeTerminal{connected: []bool{true}}
	k := NewKeepalive(term, 0, testLogger(), nil)
	k.reconnectAttempted = true

	k.check(context.Background())

	assert.False(t, k.reconnectAttempted)
	assert.Zero(t, term.startCalls)
}

func TestKeepaliveSingleReconnectPerOutage(t *testing.T) {
	// Sequence of IsConnected answers across three poll cycles:
	// cycle 1: disconnected, reconnect attempted, still disconnected after Start
	// cycle 2: disconnected, latch set, must NOT reconnect again
	// cycle 3: same
	term := &fakeTerminal{connected: []bool{false, false, false, false}}
	k := NewKeepalive(term, 0, testLogger(), nil)

	k.check(context.Background())
	assert.Equal(t, 1, term.startCalls)
	assert.True(t, k.reconnectAttempted)

	k.check(context.Background())
	k.check(context.Background())
	assert.Equal(t, 1, term.startCalls)
}

func TestKeepaliveReconnectSucceeds(t *testing.T) {
	// Disconnected on first poll, connected on the post-Start probe.
	term := &fakeTerminal{connected: []bool{false, true}}
	k := NewKeepalive(term, 0, testLogger(), nil)

	k.check(context.Background())

	assert.Equal(t, 1, term.startCalls)
	assert.False(t, k.reconnectAttempted)
}

func TestKeepaliveLatchResetsAfterRecovery(t *testing.T) {
	// Outage with a failed reconnect, then recovery clears the latch,
	// then a second outage gets a fresh reconnect attempt.
	term := &fakeTerminal{connected: []bool{false, false, true, false, false}}
	k := NewKeepalive(term, 0, testLogger(), nil)

	k.check(context.Background()) // outage: attempt 1, probe fails
	k.check(context.Background()) // recovered: latch clears
	k.check(context.Background()) // second outage: attempt 2

	assert.Equal(t, 2, term.startCalls)
}

func TestKeepaliveStartErrorLatches(t *testing.T) {
	term := &fakeTerminal{connected: []bool{false, false}, startErr: errors.New("bridge down")}
	k := NewKeepalive(term, 0, testLogger(), nil)

	k.check(context.Background())
	assert.Equal(t, 1, term.startCalls)
	assert.True(t, k.reconnectAttempted)

	k.check(context.Background())
	assert.Equal(t, 1, term.startCalls)
}

func TestKeepaliveStartStop(t *testing.T) {
	term := &fakeTerminal{connected: []bool{true}}
	k := NewKeepalive(term, time.Hour, testLogger(), nil)

	k.Start(context.Background())
	k.Stop()
}
