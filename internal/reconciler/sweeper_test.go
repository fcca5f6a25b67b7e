package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/internal/config"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/repository"
	"github.com/weiawesome/wes-io-live/internal/store"
	"github.com/weiawesome/wes-io-live/internal/testutil"
)

type sweepFixture struct {
	ctx      context.Context
	clock    *testutil.Clock
	streams  repository.StreamRepository
	sessions repository.SessionRepository
	store    store.PresenceStore
	sweeper  *Sweeper
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	_, rdb := testutil.NewTestRedis(t)
	clock := testutil.NewClock()

	f := &sweepFixture{
		ctx:      context.Background(),
		clock:    clock,
		streams:  repository.NewGormStreamRepository(db),
		sessions: repository.NewGormSessionRepository(db),
		store:    store.NewRedisStore(rdb),
	}
	f.sweeper = New(f.sessions, f.streams, f.store, config.PresenceConfig{
		ActiveWindow: 5 * time.Minute,
		StaleGrace:   10 * time.Minute,
	}, clock.Now)
	return f
}

func (f *sweepFixture) liveStream(t *testing.T) string {
	t.Helper()
	stream := &domain.Stream{
		ID:     uuid.NewString(),
		UserID: uuid.NewString(),
		Title:  "sweep test",
		Status: domain.StreamStatusLive,
	}
	require.NoError(t, f.streams.Create(f.ctx, stream))
	return stream.ID
}

func (f *sweepFixture) join(t *testing.T, streamID, sessionID string) {
	t.Helper()
	now := f.clock.Now()
	_, _, _, err := f.sessions.Join(f.ctx, &domain.ViewerSession{
		ID:           uuid.NewString(),
		StreamID:     streamID,
		SessionID:    sessionID,
		JoinedAt:     now,
		LastActiveAt: now,
	}, 5*time.Minute)
	require.NoError(t, err)
}

func TestSweeper_RunOnceDeletesStaleSessions(t *testing.T) {
	f := newSweepFixture(t)
	busy := f.liveStream(t)
	idle := f.liveStream(t)

	f.join(t, idle, "old-1")
	f.join(t, idle, "old-2")
	f.clock.Advance(16 * time.Minute)
	f.join(t, busy, "fresh-1")
	f.join(t, busy, "fresh-2")

	result, err := f.sweeper.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Deleted)
	assert.Equal(t, 2, result.Recomputed)
	assert.Equal(t, int64(2), result.LiveTotal)

	gone, err := f.sessions.GetBySessionID(f.ctx, "old-1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	stream, err := f.streams.GetByID(f.ctx, idle)
	require.NoError(t, err)
	assert.Zero(t, stream.ViewerCount)
	assert.Equal(t, int64(2), stream.PeakViewerCount)

	top, err := f.store.TopLive(f.ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{busy, idle}, top)
}

func TestSweeper_KeepsSessionsWithinGrace(t *testing.T) {
	f := newSweepFixture(t)
	id := f.liveStream(t)
	f.join(t, id, "lingering")

	// Inactive but not yet past window plus grace.
	f.clock.Advance(6 * time.Minute)
	result, err := f.sweeper.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Deleted)
	assert.Zero(t, result.LiveTotal)

	kept, err := f.sessions.GetBySessionID(f.ctx, "lingering")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestSweeper_KeepsEndedStreamHistory(t *testing.T) {
	f := newSweepFixture(t)
	id := f.liveStream(t)
	f.join(t, id, "hist-1")

	stream, err := f.streams.GetByID(f.ctx, id)
	require.NoError(t, err)
	_, err = f.streams.MarkEnded(f.ctx, id, stream.UserID, f.clock.Now())
	require.NoError(t, err)

	f.clock.Advance(16 * time.Minute)
	result, err := f.sweeper.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Deleted)

	kept, err := f.sessions.GetBySessionID(f.ctx, "hist-1")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, id, kept.StreamID)
}

func TestSweeper_StartStop(t *testing.T) {
	f := newSweepFixture(t)
	f.sweeper.cfg.SweepInterval = 10 * time.Millisecond

	f.sweeper.Start(f.ctx)
	time.Sleep(30 * time.Millisecond)
	f.sweeper.Stop()

	select {
	case <-f.sweeper.Done():
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
