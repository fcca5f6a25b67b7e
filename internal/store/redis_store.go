package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key patterns:
// presence:live_streams            ZSET<stream_id> scored by viewer count
// presence:stream:{stream_id}:peak STRING<int>     cached peak viewers
// chat:slow:{room_id}:{user_id}    STRING          slow mode marker, expires after the interval

const liveStreamsKey = "presence:live_streams"

func streamPeakKey(streamID string) string {
	return fmt.Sprintf("presence:stream:%s:peak", streamID)
}

func slowModeKey(roomID, userID string) string {
	return fmt.Sprintf("chat:slow:%s:%s", roomID, userID)
}

// peakScript sets KEYS[1] to ARGV[1] only when it is larger, atomically.
var peakScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local candidate = tonumber(ARGV[1])
if candidate > current then
	redis.call('SET', KEYS[1], ARGV[1])
	return candidate
end
return current
`)

// redisStore implements PresenceStore using Redis.
type redisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed presence store on a shared client.
func NewRedisStore(client *redis.Client) PresenceStore {
	return &redisStore{client: client}
}

func (s *redisStore) SetViewerCount(ctx context.Context, streamID string, live int64) error {
	return s.client.ZAdd(ctx, liveStreamsKey, redis.Z{Score: float64(live), Member: streamID}).Err()
}

func (s *redisStore) ObservePeak(ctx context.Context, streamID string, live int64) (int64, error) {
	return peakScript.Run(ctx, s.client, []string{streamPeakKey(streamID)}, live).Int64()
}

func (s *redisStore) RemoveStream(ctx context.Context, streamID string) error {
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, liveStreamsKey, streamID)
	pipe.Del(ctx, streamPeakKey(streamID))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) TopLive(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.client.ZRevRange(ctx, liveStreamsKey, 0, int64(limit-1)).Result()
}

func (s *redisStore) ReplaceLeaderboard(ctx context.Context, counts map[string]int64) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, liveStreamsKey)
	if len(counts) > 0 {
		members := make([]redis.Z, 0, len(counts))
		for id, live := range counts {
			members = append(members, redis.Z{Score: float64(live), Member: id})
		}
		pipe.ZAdd(ctx, liveStreamsKey, members...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// redisLimiter implements RateLimiter with SET NX and a TTL.
type redisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter creates a Redis-backed slow mode limiter.
func NewRedisLimiter(client *redis.Client) RateLimiter {
	return &redisLimiter{client: client}
}

func (l *redisLimiter) Allow(ctx context.Context, roomID, userID string, interval time.Duration) (bool, error) {
	if interval <= 0 {
		return true, nil
	}
	return l.client.SetNX(ctx, slowModeKey(roomID, userID), 1, interval).Result()
}
