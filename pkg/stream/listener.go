package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/strym-io/strym/pkg/models"
)

// Listener subscribes to the shared Redis channel and dispatches each
// arriving event to the local Registry. One Listener runs per instance.
//
// Reconnection is delegated to go-redis: the PubSub re-subscribes
// transparently after a connection loss. Events published during the gap
// are dropped — the stream is best-effort, no replay.
type Listener struct {
	rdb      *redis.Client
	registry *Registry

	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener creates a Listener on the process-wide Redis client.
func NewListener(rdb *redis.Client, registry *Registry) *Listener {
	return &Listener{rdb: rdb, registry: registry}
}

// Start subscribes to the logs channel and begins dispatching. The
// subscription is confirmed before Start returns, so events published
// afterwards are not missed while the bus is healthy.
func (l *Listener) Start(ctx context.Context) error {
	l.pubsub = l.rdb.Subscribe(ctx, LogsChannel)

	// Wait for the subscription confirmation.
	if _, err := l.pubsub.Receive(ctx); err != nil {
		_ = l.pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", LogsChannel, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.receiveLoop(loopCtx)

	slog.Info("Event bus listener started", "channel", LogsChannel)
	return nil
}

// receiveLoop dispatches bus messages to the registry until Stop or
// context cancellation.
func (l *Listener) receiveLoop(ctx context.Context) {
	defer close(l.done)

	ch := l.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var entry models.LogEntry
			if err := json.Unmarshal([]byte(msg.Payload), &entry); err != nil {
				slog.Warn("Discarding malformed bus payload", "error", err)
				continue
			}
			l.registry.Fanout(entry)
		}
	}
}

// Stop closes the subscription and waits for the dispatch loop to drain,
// bounded by ctx.
func (l *Listener) Stop(ctx context.Context) {
	if l.cancel != nil {
		l.cancel()
	}
	if l.pubsub != nil {
		_ = l.pubsub.Close()
	}
	if l.done != nil {
		select {
		case <-l.done:
		case <-ctx.Done():
			slog.Warn("Event bus listener did not drain before deadline")
		}
	}
}
