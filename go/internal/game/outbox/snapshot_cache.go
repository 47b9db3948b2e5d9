package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/mcdev12/pidr/go/internal/game"
	"github.com/rs/zerolog/log"
)

// setIfNewer stores a snapshot only when its version is above the cached one.
// KEYS[1] = room hash, ARGV = version, snapshot json, ttl ms.
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'snapshot', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// SnapshotCache keeps the latest snapshot of every room in Redis so any
// instance can answer reads for rooms it does not run.
type SnapshotCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewSnapshotCache creates a cache with keys under keyPrefix.
func NewSnapshotCache(client *redis.Client, keyPrefix string, ttl time.Duration) *SnapshotCache {
	if keyPrefix == "" {
		keyPrefix = "pidr:"
	}
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &SnapshotCache{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (c *SnapshotCache) roomKey(roomID uuid.UUID) string {
	return fmt.Sprintf("%sroom:%s:snapshot", c.keyPrefix, roomID)
}

// OnSnapshot caches snap unless a newer version is already there.
func (c *SnapshotCache) OnSnapshot(ctx context.Context, roomID uuid.UUID, version uint64, snap *game.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	stored, err := setIfNewer.Run(ctx, c.client, []string{c.roomKey(roomID)}, version, raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis: failed to cache snapshot for room %s: %w", roomID, err)
	}
	if stored == 0 {
		log.Debug().Str("room_id", roomID.String()).Uint64("version", version).Msg("cached snapshot is newer")
	}
	return nil
}

// Latest returns the cached snapshot, or nil when the room has none.
func (c *SnapshotCache) Latest(ctx context.Context, roomID uuid.UUID) (*game.Snapshot, error) {
	raw, err := c.client.HGet(ctx, c.roomKey(roomID), "snapshot").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: failed to read snapshot for room %s: %w", roomID, err)
	}
	var snap game.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal cached snapshot: %w", err)
	}
	return &snap, nil
}
