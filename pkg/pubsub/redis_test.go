package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisPubSub(t *testing.T) *RedisPubSub {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ps := NewRedisPubSubFromClient(rdb)
	t.Cleanup(func() { ps.Close() })
	return ps
}

func TestRedisPubSub_PublishSubscribe(t *testing.T) {
	ps := setupRedisPubSub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := StreamChannel("s1", KindPresence)
	events, err := ps.Subscribe(ctx, channel)
	require.NoError(t, err)

	evt, err := NewEvent(EventViewerCount, "s1", ViewerCountPayload{StreamID: "s1", ViewerCount: 3, PeakViewerCount: 5})
	require.NoError(t, err)
	require.NoError(t, ps.Publish(ctx, channel, evt))

	select {
	case got := <-events:
		require.NotNil(t, got)
		assert.Equal(t, EventViewerCount, got.Type)
		assert.Equal(t, "s1", got.StreamID)

		var payload ViewerCountPayload
		require.NoError(t, got.UnmarshalPayload(&payload))
		assert.Equal(t, int64(3), payload.ViewerCount)
		assert.Equal(t, int64(5), payload.PeakViewerCount)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRedisPubSub_Pattern(t *testing.T) {
	ps := setupRedisPubSub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := ps.SubscribePattern(ctx, KindPattern(KindLifecycle))
	require.NoError(t, err)

	evt, err := NewEvent(EventStreamEnded, "s9", StreamLifecyclePayload{StreamID: "s9", Status: "ended"})
	require.NoError(t, err)
	require.NoError(t, ps.Publish(ctx, StreamChannel("s9", KindLifecycle), evt))

	select {
	case got := <-events:
		assert.Equal(t, EventStreamEnded, got.Type)
		assert.Equal(t, "s9", got.StreamID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRedisPubSub_RejectsForeignChannel(t *testing.T) {
	ps := setupRedisPubSub(t)
	ctx := context.Background()

	evt, err := NewEvent(EventViewerCount, "s1", ViewerCountPayload{StreamID: "s1"})
	require.NoError(t, err)
	assert.Error(t, ps.Publish(ctx, "signal:room:1:to_media", evt))

	_, err = ps.Subscribe(ctx, "viewers")
	assert.Error(t, err)
}

func TestRedisPubSub_Unsubscribe(t *testing.T) {
	ps := setupRedisPubSub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := StreamChannel("s1", KindChat)
	events, err := ps.Subscribe(ctx, channel)
	require.NoError(t, err)
	require.NoError(t, ps.Unsubscribe(ctx, channel))
	require.NoError(t, ps.Unsubscribe(ctx, channel))

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("event channel was not closed")
	}
}
