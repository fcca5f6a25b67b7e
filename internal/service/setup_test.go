package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/internal/cache"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/idgen"
	"github.com/weiawesome/wes-io-live/internal/repository"
	"github.com/weiawesome/wes-io-live/internal/store"
	"github.com/weiawesome/wes-io-live/internal/testutil"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
)

type recordedEvent struct {
	channel string
	event   *pubsub.Event
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, event *pubsub.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{channel: channel, event: event})
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []recordedEvent
	for _, e := range p.events {
		if e.event.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	db    *gorm.DB
	mr    *miniredis.Miniredis
	clock *testutil.Clock
	pub   *recordingPublisher
	ctx   context.Context

	streamRepo   repository.StreamRepository
	sessionRepo  repository.SessionRepository
	messageRepo  repository.MessageRepository
	userRepo     repository.UserRepository
	followRepo   repository.FollowRepository
	presenceData store.PresenceStore
	roomCache    cache.RoomCache

	presence  PresenceService
	rooms     ChatRoomService
	messages  MessageService
	lifecycle LifecycleService
	streams   StreamService
	users     UserService
	dashboard DashboardService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	mr, rdb := testutil.NewTestRedis(t)
	clock := testutil.NewClock()
	pub := &recordingPublisher{}
	uuids := idgen.NewUUIDGenerator()

	f := &fixture{
		db:           db,
		mr:           mr,
		clock:        clock,
		pub:          pub,
		ctx:          context.Background(),
		streamRepo:   repository.NewGormStreamRepository(db),
		sessionRepo:  repository.NewGormSessionRepository(db),
		messageRepo:  repository.NewGormMessageRepository(db),
		userRepo:     repository.NewGormUserRepository(db),
		followRepo:   repository.NewGormFollowRepository(db),
		presenceData: store.NewRedisStore(rdb),
		roomCache:    cache.NewRedisRoomCache(rdb, ""),
	}
	roomRepo := repository.NewGormChatRoomRepository(db)

	f.presence = NewPresenceService(f.sessionRepo, f.presenceData, pub, uuids, domain.DefaultActiveWindow, clock.Now)
	f.rooms = NewChatRoomService(roomRepo, f.streamRepo, f.roomCache, time.Minute, nil, pub, uuids, clock.Now)
	f.messages = NewMessageService(
		f.messageRepo, f.rooms, f.streamRepo, f.followRepo, f.userRepo,
		store.NewRedisLimiter(rdb), pub, idgen.NewULIDGenerator(),
		MessageConfig{}, clock.Now,
	)
	f.lifecycle = NewLifecycleService(f.streamRepo, f.rooms, f.presenceData, pub, clock.Now)
	f.streams = NewStreamService(f.streamRepo, f.userRepo, f.presenceData, uuids, clock.Now)
	f.users = NewUserService(f.userRepo, f.followRepo, uuids, clock.Now)
	f.dashboard = NewDashboardService(f.streamRepo, f.followRepo)
	return f
}

func (f *fixture) createUser(t *testing.T) string {
	t.Helper()
	id := uuid.NewString()
	_, err := f.users.UpsertProfile(f.ctx, id, &domain.UpsertProfileRequest{
		Username:    gofakeit.Username() + gofakeit.DigitN(6),
		DisplayName: gofakeit.Name(),
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) createStream(t *testing.T, ownerID string) *domain.Stream {
	t.Helper()
	stream, err := f.streams.Create(f.ctx, ownerID, &domain.CreateStreamRequest{Title: gofakeit.Sentence(4)})
	require.NoError(t, err)
	return stream
}

// startStream creates a live stream and returns it with its chat room.
func (f *fixture) startStream(t *testing.T, ownerID string) (*domain.Stream, *domain.ChatRoom) {
	t.Helper()
	stream := f.createStream(t, ownerID)
	live, err := f.lifecycle.Start(f.ctx, stream.ID, ownerID, "media-"+stream.ID)
	require.NoError(t, err)
	room, err := f.rooms.GetByStreamID(f.ctx, stream.ID)
	require.NoError(t, err)
	require.NotNil(t, room)
	return live, room
}
