package service

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
)

func TestValidateSessionID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "abc-123", false},
		{"with separators", "tab:1.2_x", false},
		{"max length", strings.Repeat("a", 128), false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 129), true},
		{"space", "a b", true},
		{"slash", "a/b", true},
		{"unicode", "séance", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionID(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidSessionID)
				assert.ErrorIs(t, err, domain.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPresenceService_JoinIdempotent(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t)
	stream, _ := f.startStream(t, owner)

	first, err := f.presence.Join(f.ctx, stream.ID, "a", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ViewerCount)

	f.clock.Advance(30 * time.Second)
	second, err := f.presence.Join(f.ctx, stream.ID, "a", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.LastActiveAt.After(first.LastActiveAt))
	assert.True(t, second.JoinedAt.Equal(first.JoinedAt))
	assert.Equal(t, int64(1), second.ViewerCount)

	var rows int64
	require.NoError(t, f.db.Model(&domain.ViewerSessionModel{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestPresenceService_JoinErrors(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t)
	offline := f.createStream(t, owner)

	_, err := f.presence.Join(f.ctx, offline.ID, "a", "")
	assert.ErrorIs(t, err, domain.ErrStreamNotLive)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.presence.Join(f.ctx, uuid.NewString(), "a", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.presence.Join(f.ctx, offline.ID, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidSessionID)
}

func TestPresenceService_MultipleSessionsPerUser(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t)
	viewer := f.createUser(t)
	stream, _ := f.startStream(t, owner)

	_, err := f.presence.Join(f.ctx, stream.ID, "tab-1", viewer)
	require.NoError(t, err)
	handle, err := f.presence.Join(f.ctx, stream.ID, "tab-2", viewer)
	require.NoError(t, err)
	assert.Equal(t, int64(2), handle.ViewerCount)
}

func TestPresenceService_ActiveWindow(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t)
	stream, _ := f.startStream(t, owner)

	_, err := f.presence.Join(f.ctx, stream.ID, "a", "")
	require.NoError(t, err)

	f.clock.Advance(4*time.Minute + 59*time.Second)
	count, err := f.presence.GetViewerCount(f.ctx, stream.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	f.clock.Advance(2 * time.Second)
	count, err = f.presence.GetViewerCount(f.ctx, stream.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	ok, err := f.presence.Heartbeat(f.ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	count, err = f.presence.GetViewerCount(f.ctx, stream.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPresenceService_HeartbeatAndLeaveUnknown(t *testing.T) {
	f := newFixture(t)

	ok, err := f.presence.Heartbeat(f.ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)

	left, err := f.presence.Leave(f.ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, left)
}

func TestPresenceService_PublishesAndRanks(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t)
	quiet, _ := f.startStream(t, owner)
	busy, _ := f.startStream(t, f.createUser(t))

	_, err := f.presence.Join(f.ctx, busy.ID, "a", "")
	require.NoError(t, err)
	_, err = f.presence.Join(f.ctx, busy.ID, "b", "")
	require.NoError(t, err)

	top, err := f.presenceData.TopLive(f.ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{busy.ID, quiet.ID}, top)

	events := f.pub.ofType(pubsub.EventViewerCount)
	require.Len(t, events, 2)
	last := events[len(events)-1]
	assert.Equal(t, pubsub.StreamChannel(busy.ID, pubsub.KindPresence), last.channel)

	var payload pubsub.ViewerCountPayload
	require.NoError(t, last.event.UnmarshalPayload(&payload))
	assert.Equal(t, int64(2), payload.ViewerCount)
	assert.Equal(t, int64(2), payload.PeakViewerCount)

	left, err := f.presence.Leave(f.ctx, "a")
	require.NoError(t, err)
	assert.True(t, left)

	stored, err := f.streamRepo.GetByID(f.ctx, busy.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ViewerCount)
	assert.Equal(t, int64(2), stored.PeakViewerCount)
}
