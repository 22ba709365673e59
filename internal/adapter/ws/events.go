package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Event type constants for WebSocket messages.
const (
	EventWeatherRefreshed = "weather.refreshed"
	EventCacheInvalidated = "cache.invalidated"
	EventJanitorSweep     = "janitor.sweep"
)

// WeatherRefreshedEvent is broadcast when a fresh payload was fetched and
// written through the cache.
type WeatherRefreshedEvent struct {
	Key        string    `json:"key"`
	TTLSeconds int       `json:"ttl_seconds"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// CacheInvalidatedEvent is broadcast after a full cache wipe.
type CacheInvalidatedEvent struct {
	At time.Time `json:"at"`
}

// JanitorSweepEvent is broadcast after each janitor run.
type JanitorSweepEvent struct {
	RunID        string    `json:"run_id"`
	DeletedCount int       `json:"deleted_count"`
	RunAt        time.Time `json:"run_at"`
}

// BroadcastEvent marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
