package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/internal/domain"
)

func TestDashboardService_GetStats(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t)
	fan := f.createUser(t)

	_, err := f.dashboard.GetStats(f.ctx, "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = f.users.Follow(f.ctx, fan, owner)
	require.NoError(t, err)

	first, _ := f.startStream(t, owner)
	for _, sid := range []string{"s1", "s2"} {
		_, err := f.presence.Join(f.ctx, first.ID, sid, "")
		require.NoError(t, err)
	}
	_, err = f.lifecycle.End(f.ctx, first.ID, owner)
	require.NoError(t, err)

	second, _ := f.startStream(t, owner)
	_, err = f.presence.Join(f.ctx, second.ID, "s3", "")
	require.NoError(t, err)
	f.createStream(t, owner)

	stats, err := f.dashboard.GetStats(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.FollowerCount)
	assert.Zero(t, stats.FollowingCount)
	assert.Equal(t, int64(3), stats.StreamCount)
	assert.Equal(t, int64(3), stats.TotalViews)
}

func TestDashboardService_GetMyStreams(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t)

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, f.createStream(t, owner).ID)
		f.clock.Advance(time.Second)
	}

	page, err := f.dashboard.GetMyStreams(f.ctx, owner, 2, "")
	require.NoError(t, err)
	require.Len(t, page.Streams, 2)
	assert.Equal(t, ids[4], page.Streams[0].ID)
	assert.Equal(t, ids[3], page.Streams[1].ID)
	require.NotNil(t, page.NextCursor)

	var seen []string
	cursor := ""
	for {
		page, err := f.dashboard.GetMyStreams(f.ctx, owner, 2, cursor)
		require.NoError(t, err)
		for _, st := range page.Streams {
			seen = append(seen, st.ID)
		}
		if page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}
	assert.Equal(t, []string{ids[4], ids[3], ids[2], ids[1], ids[0]}, seen)

	empty, err := f.dashboard.GetMyStreams(f.ctx, f.createUser(t), 0, "")
	require.NoError(t, err)
	assert.Empty(t, empty.Streams)
	assert.NotNil(t, empty.Streams)
	assert.Nil(t, empty.NextCursor)

	_, err = f.dashboard.GetMyStreams(f.ctx, owner, 2, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrInvalidCursor)
}
