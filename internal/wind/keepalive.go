package wind

import (
	"context"
	"log/slog"
	"time"

	"github.com/abuttoncc/wind-mcp/internal/metrics"
)

// Keepalive polls the terminal session and attempts one automatic reconnect
// per outage. The vendor terminal opens a login dialog on every failed
// start, so repeated attempts while an outage persists would bury the
// operator's desktop in dialogs; after one failed attempt the monitor only
// warns until connectivity returns on its own or a human logs in.
type Keepalive struct {
	terminal Terminal
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// reconnectAttempted latches after a failed reconnect and clears
	// once the session is observed connected again.
	reconnectAttempted bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewKeepalive builds a monitor for terminal polling every interval. The
// metrics set may be nil.
func NewKeepalive(terminal Terminal, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Keepalive {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Keepalive{
		terminal: terminal,
		interval: interval,
		logger:   logger,
		metrics:  m,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the monitor loop. Call Stop to shut it down.
func (k *Keepalive) Start(ctx context.Context) {
	go k.run(ctx)
}

func (k *Keepalive) run(ctx context.Context) {
	defer close(k.doneCh)

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	k.logger.Info("keepalive monitor started", slog.Duration("interval", k.interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-k.stopCh:
			return
		case <-ticker.C:
			k.check(ctx)
		}
	}
}

func (k *Keepalive) check(ctx context.Context) {
	if k.terminal.IsConnected(ctx) {
		if k.reconnectAttempted {
			k.logger.Info("terminal session restored")
		}
		k.reconnectAttempted = false
		return
	}

	if k.reconnectAttempted {
		k.logger.Warn("terminal still disconnected after reconnect attempt, waiting for manual login")
		return
	}

	k.logger.Warn("terminal disconnected, attempting reconnect")
	k.reconnectAttempted = true
	if k.metrics != nil {
		k.metrics.ReconnectTotal.Inc()
	}

	if err := k.terminal.Start(ctx); err != nil {
		k.logger.Error("terminal reconnect failed", slog.Any("error", err))
		if k.metrics != nil {
			k.metrics.ReconnectFailed.Inc()
		}
		return
	}

	if k.terminal.IsConnected(ctx) {
		k.logger.Info("terminal reconnect succeeded")
		k.reconnectAttempted = false
		return
	}

	k.logger.Error("terminal reconnect did not restore the session, manual login required")
	if k.metrics != nil {
		k.metrics.ReconnectFailed.Inc()
	}
}

// Stop shuts the monitor down and waits for the loop to exit.
func (k *Keepalive) Stop() {
	close(k.stopCh)
	<-k.doneCh
}
