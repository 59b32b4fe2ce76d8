package playlist

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const broadcastChannel = "broadcast"

const (
	eventPlaylistCreated = "playlist.created"
	eventPlaylistUpdated = "playlist.updated"
	eventPlaylistDeleted = "playlist.deleted"
	eventSongAdded       = "playlist.song_added"
	eventSongsAdded      = "playlist.songs_added"
	eventSongRemoved     = "playlist.song_removed"
	eventShared          = "playlist.shared"
	eventShareRevoked    = "playlist.share_revoked"
)

// EventPublisher delivers domain events after a transaction has committed.
// Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any)
}

// RedisPublisher sends events to the realtime service over Redis pub/sub.
// A nil client turns it into a no-op.
type RedisPublisher struct {
	rdb    *redis.Client
	logger *log.Logger
}

func NewRedisPublisher(rdb *redis.Client, logger *log.Logger) *RedisPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &RedisPublisher{rdb: rdb, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, eventType string, payload any) {
	if p == nil || p.rdb == nil {
		return
	}
	data, err := json.Marshal(map[string]any{
		"type":    eventType,
		"payload": payload,
	})
	if err != nil {
		p.logger.Error("marshal event", "type", eventType, "err", err)
		return
	}
	if err := p.rdb.Publish(ctx, broadcastChannel, string(data)).Err(); err != nil {
		p.logger.Warn("publish event", "type", eventType, "err", err)
	}
}
