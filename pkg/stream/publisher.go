package stream

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/strym-io/strym/pkg/models"
)

// Publisher broadcasts ingested events to every instance over the shared
// Redis channel. The publishing instance receives its own events back
// through its Listener, so local subscribers are served by the same path
// as remote ones.
//
// Publish is best-effort: when the bus is unreachable the event is fanned
// out to the local registry directly, so subscribers on this instance
// still receive it. The write itself has already succeeded by the time
// Publish runs, so bus failures are logged, never surfaced to the caller.
type Publisher struct {
	rdb      *redis.Client
	registry *Registry
}

// NewPublisher creates a Publisher on the process-wide Redis client.
func NewPublisher(rdb *redis.Client, registry *Registry) *Publisher {
	return &Publisher{rdb: rdb, registry: registry}
}

// Publish sends one canonicalized event (id, timestamp, and created_at
// already assigned) to the bus.
func (p *Publisher) Publish(ctx context.Context, entry models.LogEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		slog.Warn("Failed to marshal event for bus publish", "log_id", entry.ID, "error", err)
		return
	}

	if err := p.rdb.Publish(ctx, LogsChannel, payload).Err(); err != nil {
		slog.Warn("Event bus publish failed, degrading to local-only delivery",
			"log_id", entry.ID, "error", err)
		p.registry.Fanout(entry)
	}
}
