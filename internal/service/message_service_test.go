package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/idgen"
	"github.com/weiawesome/wes-io-live/internal/repository"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
)

func countMessages(t *testing.T, f *fixture) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&domain.ChatMessageModel{}).Count(&n).Error)
	return n
}

func TestMessageService_SendValidation(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t)
	viewer := f.createUser(t)
	_, room := f.startStream(t, owner)

	tests := []struct {
		name    string
		roomID  string
		caller  string
		content string
		msgType domain.MessageType
		wantErr error
	}{
		{"anonymous", room.ID, "", "hi", "", domain.ErrUnauthenticated},
		{"unknown room", uuid.NewString(), viewer, "hi", "", domain.ErrRoomNotFound},
		{"empty", room.ID, viewer, "", "", domain.ErrEmptyMessage},
		{"whitespace", room.ID, viewer, " \t\n ", "", domain.ErrEmptyMessage},
		{"too long", room.ID, viewer, strings.Repeat("é", 501), "", domain.ErrContentTooLong},
		{"bad type", room.ID, viewer, "hi", "shout", domain.ErrInvalidMessageType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.messages.Send(f.ctx, tt.roomID, tt.caller, tt.content, tt.msgType)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Zero(t, countMessages(t, f))

	msg, err := f.messages.Send(f.ctx, room.ID, viewer, strings.Repeat("é", 500), "")
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeMessage, msg.Type)
	assert.False(t, msg.IsDeleted)

	emote, err := f.messages.Send(f.ctx, room.ID, viewer, ":wave:", domain.MessageTypeEmote)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeEmote, emote.Type)
}

func TestMessageService_ChatDisabledInsertsNothing(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t)
	_, room := f.startStream(t, owner)

	disabled := false
	_, err := f.rooms.UpdatePolicy(f.ctx, room.ID, owner, domain.PolicyPatch{IsEnabled: &disabled})
	require.NoError(t, err)

	_, err = f.messages.Send(f.ctx, room.ID, f.createUser(t), "hello", "")
	assert.ErrorIs(t, err, domain.ErrChatDisabled)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Zero(t, countMessages(t, f))
}

func TestMessageService_ListOrderAndTombstone(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t)
	viewer := f.createUser(t)
	_, room := f.startStream(t, owner)

	var sent []*domain.ChatMessage
	for i := 0; i < 5; i++ {
		msg, err := f.messages.Send(f.ctx, room.ID, viewer, fmt.Sprintf("msg-%d", i), "")
		require.NoError(t, err)
		sent = append(sent, msg)
		if i%2 == 0 {
			f.clock.Advance(time.Second)
		}
	}

	views, err := f.messages.List(f.ctx, room.ID, 3)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, []string{"msg-2", "msg-3", "msg-4"}, []string{views[0].Content, views[1].Content, views[2].Content})
	require.NotNil(t, views[0].User)
	assert.Equal(t, viewer, views[0].User.ID)

	ok, err := f.messages.Delete(f.ctx, sent[3].ID, owner)
	require.NoError(t, err)
	assert.True(t, ok)

	views, err = f.messages.List(f.ctx, room.ID, 50)
	require.NoError(t, err)
	require.Len(t, views, 5)
	assert.Equal(t, sent[3].ID, views[3].ID)
	assert.Equal(t, domain.DeletedMessagePlaceholder, views[3].Content)
	assert.True(t, views[3].IsDeleted)
	assert.Nil(t, views[3].User)

	stored, err := f.messages.GetMessage(f.ctx, sent[3].ID)
	require.NoError(t, err)
	assert.Equal(t, "msg-3", stored.Content)

	transcript, err := f.messages.Transcript(f.ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 5)
	assert.Equal(t, "msg-0", transcript[0].Content)
	assert.Equal(t, domain.DeletedMessagePlaceholder, transcript[3].Content)

	_, err = f.messages.List(f.ctx, uuid.NewString(), 10)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestMessageService_DeletePermissions(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t)
	author := f.createUser(t)
	stranger := f.createUser(t)
	stream, room := f.startStream(t, owner)

	msg, err := f.messages.Send(f.ctx, room.ID, author, "hello", "")
	require.NoError(t, err)

	_, err = f.messages.Delete(f.ctx, msg.ID, "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = f.messages.Delete(f.ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV", author)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.messages.Delete(f.ctx, msg.ID, stranger)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	ok, err := f.messages.Delete(f.ctx, msg.ID, author)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second delete succeeds without overwriting deletedBy.
	ok, err = f.messages.Delete(f.ctx, msg.ID, owner)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := f.messages.GetMessage(f.ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DeletedBy)
	assert.Equal(t, author, *stored.DeletedBy)

	events := f.pub.ofType(pubsub.EventChatMessageDeleted)
	require.Len(t, events, 1)
	assert.Equal(t, pubsub.StreamChannel(stream.ID, pubsub.KindChat), events[0].channel)
}

func TestMessageService_SlowMode(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t)
	viewer := f.createUser(t)
	_, room := f.startStream(t, owner)

	slow := 10
	_, err := f.rooms.UpdatePolicy(f.ctx, room.ID, owner, domain.PolicyPatch{SlowMode: &slow})
	require.NoError(t, err)

	_, err = f.messages.Send(f.ctx, room.ID, viewer, "one", "")
	require.NoError(t, err)
	_, err = f.messages.Send(f.ctx, room.ID, viewer, "two", "")
	assert.ErrorIs(t, err, domain.ErrSlowMode)

	for i := 0; i < 3; i++ {
		_, err = f.messages.Send(f.ctx, room.ID, owner, "owner is exempt", "")
		require.NoError(t, err)
	}

	f.mr.FastForward(11 * time.Second)
	_, err = f.messages.Send(f.ctx, room.ID, viewer, "three", "")
	require.NoError(t, err)
}

func TestMessageService_FollowersOnly(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t)
	follower := f.createUser(t)
	stranger := f.createUser(t)
	_, room := f.startStream(t, owner)

	on := true
	_, err := f.rooms.UpdatePolicy(f.ctx, room.ID, owner, domain.PolicyPatch{FollowersOnly: &on})
	require.NoError(t, err)
	_, err = f.users.Follow(f.ctx, follower, owner)
	require.NoError(t, err)

	_, err = f.messages.Send(f.ctx, room.ID, stranger, "hi", "")
	assert.ErrorIs(t, err, domain.ErrFollowersOnly)

	_, err = f.messages.Send(f.ctx, room.ID, follower, "hi", "")
	require.NoError(t, err)
	_, err = f.messages.Send(f.ctx, room.ID, owner, "welcome", "")
	require.NoError(t, err)
}

func TestMessageService_SubscribersOnlyIsInert(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t)
	_, room := f.startStream(t, owner)

	on := true
	_, err := f.rooms.UpdatePolicy(f.ctx, room.ID, owner, domain.PolicyPatch{SubscribersOnly: &on})
	require.NoError(t, err)

	_, err = f.messages.Send(f.ctx, room.ID, f.createUser(t), "hi", "")
	require.NoError(t, err)
}

func TestMessageService_ListLimitClamp(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t)
	viewer := f.createUser(t)
	_, room := f.startStream(t, owner)

	for i := 0; i < 120; i++ {
		_, err := f.messages.Send(f.ctx, room.ID, viewer, fmt.Sprintf("m%d", i), "")
		require.NoError(t, err)
	}

	views, err := f.messages.List(f.ctx, room.ID, 0)
	require.NoError(t, err)
	assert.Len(t, views, 50)
	assert.Equal(t, "m119", views[49].Content)

	views, err = f.messages.List(f.ctx, room.ID, 1000)
	require.NoError(t, err)
	assert.Len(t, views, 100)
}

// mirrorFailingRepo applies the delete but reports a failed second write on
// its first call, like a store whose room timeline copy was not updated.
type mirrorFailingRepo struct {
	repository.MessageRepository
	failed bool
	calls  int
}

func (r *mirrorFailingRepo) SoftDelete(ctx context.Context, id, deletedBy string) (bool, error) {
	r.calls++
	deleted, err := r.MessageRepository.SoftDelete(ctx, id, deletedBy)
	if err != nil || r.failed {
		return deleted, err
	}
	r.failed = true
	return deleted, errors.New("mirror write failed")
}

func newMessageServiceWith(f *fixture, repo repository.MessageRepository) MessageService {
	return NewMessageService(
		repo, f.rooms, f.streamRepo, f.followRepo, f.userRepo,
		nil, f.pub, idgen.NewULIDGenerator(), MessageConfig{}, f.clock.Now,
	)
}

func TestMessageService_DeleteRetryCompletesTombstone(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t)
	author := f.createUser(t)
	_, room := f.startStream(t, owner)

	msg, err := f.messages.Send(f.ctx, room.ID, author, "oops", "")
	require.NoError(t, err)

	repo := &mirrorFailingRepo{MessageRepository: f.messageRepo}
	svc := newMessageServiceWith(f, repo)

	_, err = svc.Delete(f.ctx, msg.ID, author)
	require.Error(t, err)
	// The delete won, so live clients are told even though the write failed.
	assert.Len(t, f.pub.ofType(pubsub.EventChatMessageDeleted), 1)

	ok, err := svc.Delete(f.ctx, msg.ID, author)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, repo.calls)
	assert.Len(t, f.pub.ofType(pubsub.EventChatMessageDeleted), 1)

	views, err := svc.List(f.ctx, room.ID, 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, domain.DeletedMessagePlaceholder, views[0].Content)
}

func TestMessageService_SendIgnoresStaleRoomCache(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t)
	viewer := f.createUser(t)
	_, room := f.startStream(t, owner)

	disabled := false
	_, err := f.rooms.UpdatePolicy(f.ctx, room.ID, owner, domain.PolicyPatch{IsEnabled: &disabled})
	require.NoError(t, err)

	// A reader that loaded the row before the update refills the cache.
	stale := *room
	stale.IsEnabled = true
	require.NoError(t, f.roomCache.Set(f.ctx, f.roomCache.BuildKeyByID(room.ID), &stale, time.Minute))

	cached, err := f.rooms.GetByID(f.ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, cached.IsEnabled)

	_, err = f.messages.Send(f.ctx, room.ID, viewer, "hello", "")
	assert.ErrorIs(t, err, domain.ErrChatDisabled)
	assert.Zero(t, countMessages(t, f))
}

// gatedListRepo holds ListRecent until released and honours cancellation
// the way a database driver would.
type gatedListRepo struct {
	repository.MessageRepository
	entered chan struct{}
	release chan struct{}
}

func (r *gatedListRepo) ListRecent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	select {
	case r.entered <- struct{}{}:
	default:
	}
	<-r.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.MessageRepository.ListRecent(ctx, roomID, limit)
}

func TestMessageService_ListSharedQuerySurvivesCancelledCaller(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t)
	_, room := f.startStream(t, owner)
	_, err := f.messages.Send(f.ctx, room.ID, owner, "first", "")
	require.NoError(t, err)

	repo := &gatedListRepo{
		MessageRepository: f.messageRepo,
		entered:           make(chan struct{}, 1),
		release:           make(chan struct{}),
	}
	svc := newMessageServiceWith(f, repo)

	type result struct {
		views []domain.MessageView
		err   error
	}
	leaderCtx, cancel := context.WithCancel(f.ctx)
	leader := make(chan result, 1)
	go func() {
		views, err := svc.List(leaderCtx, room.ID, 10)
		leader <- result{views, err}
	}()
	<-repo.entered

	follower := make(chan result, 1)
	go func() {
		views, err := svc.List(f.ctx, room.ID, 10)
		follower <- result{views, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	close(repo.release)

	first := <-leader
	second := <-follower
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	require.Len(t, first.views, 1)
	require.Len(t, second.views, 1)

	first.views[0].Content = "changed"
	assert.Equal(t, "first", second.views[0].Content)
}
