// Package events publishes domain events for downstream consumers
// (notification senders, statistics, audit).
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medisched/medisched/internal/domain/schedule"
)

// StreamPublisher appends events to a redis stream via XADD. Each entry
// carries the event name and its JSON payload.
type StreamPublisher struct {
	client *redis.Client
	stream string
	log    zerolog.Logger
}

func NewStreamPublisher(client *redis.Client, stream string, log zerolog.Logger) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, log: log}
}

func (p *StreamPublisher) Publish(ctx context.Context, events ...schedule.Event) error {
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", e.EventName(), err)
		}
		id, err := p.client.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			Values: map[string]interface{}{
				"event":       e.EventName(),
				"payload":     string(payload),
				"occurred_at": e.OccurredAt().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			},
		}).Result()
		if err != nil {
			return fmt.Errorf("xadd %s to %s: %w", e.EventName(), p.stream, err)
		}
		p.log.Debug().Str("event", e.EventName()).Str("stream_id", id).Msg("event published")
	}
	return nil
}

// LogPublisher writes events to the structured log. Used when redis is not
// configured, so event emission never silently disappears.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, events ...schedule.Event) error {
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", e.EventName(), err)
		}
		p.log.Info().Str("event", e.EventName()).RawJSON("payload", payload).Msg("domain event")
	}
	return nil
}
