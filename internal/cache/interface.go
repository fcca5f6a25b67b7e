package cache

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-live/internal/domain"
)

// RoomCache caches chat rooms looked up by stream ID.
type RoomCache interface {
	Get(ctx context.Context, key string) (*domain.ChatRoom, error)
	Set(ctx context.Context, key string, room *domain.ChatRoom, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	BuildKeyByStreamID(streamID string) string
	BuildKeyByID(roomID string) string
}
