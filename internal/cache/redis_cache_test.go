package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/testutil"
)

func TestRedisRoomCache(t *testing.T) {
	mr, rdb := testutil.NewTestRedis(t)
	c := NewRedisRoomCache(rdb, "")
	ctx := context.Background()
	key := c.BuildKeyByStreamID("s1")
	assert.Equal(t, "chat_room:stream:s1", key)

	_, err := c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)

	slow := 30
	room := &domain.ChatRoom{ID: "r1", StreamID: "s1", IsEnabled: true, SlowMode: &slow}
	require.NoError(t, c.Set(ctx, key, room, time.Minute))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)
	assert.Equal(t, 30, *got.SlowMode)

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, key, room, time.Minute))
	require.NoError(t, c.Delete(ctx, key, c.BuildKeyByID("r1")))
	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)
	require.NoError(t, c.Delete(ctx))
}
