package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-live/internal/audit"
	"github.com/weiawesome/wes-io-live/internal/cache"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/idgen"
	"github.com/weiawesome/wes-io-live/internal/repository"
	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
)

// ownerModerator grants moderation to the stream owner only.
type ownerModerator struct {
	streams repository.StreamRepository
}

// NewOwnerModerator creates the default Moderator.
func NewOwnerModerator(streams repository.StreamRepository) Moderator {
	return &ownerModerator{streams: streams}
}

func (m *ownerModerator) CanModerate(ctx context.Context, room *domain.ChatRoom, userID string) (bool, error) {
	if room == nil || userID == "" {
		return false, nil
	}
	stream, err := m.streams.GetByID(ctx, room.StreamID)
	if err != nil {
		if errors.Is(err, repository.ErrStreamNotFound) {
			return false, nil
		}
		return false, err
	}
	return stream.UserID == userID, nil
}

// chatRoomServiceImpl implements ChatRoomService.
type chatRoomServiceImpl struct {
	rooms     repository.ChatRoomRepository
	streams   repository.StreamRepository
	cache     cache.RoomCache
	cacheTTL  time.Duration
	moderator Moderator
	events    eventPublisher
	ids       idgen.Generator
	now       func() time.Time
}

// NewChatRoomService creates a new chat room service. roomCache may be nil;
// a nil moderator falls back to owner-only moderation.
func NewChatRoomService(
	rooms repository.ChatRoomRepository,
	streams repository.StreamRepository,
	roomCache cache.RoomCache,
	cacheTTL time.Duration,
	moderator Moderator,
	pub pubsub.Publisher,
	ids idgen.Generator,
	now func() time.Time,
) ChatRoomService {
	if moderator == nil {
		moderator = NewOwnerModerator(streams)
	}
	if now == nil {
		now = time.Now
	}
	return &chatRoomServiceImpl{
		rooms:     rooms,
		streams:   streams,
		cache:     roomCache,
		cacheTTL:  cacheTTL,
		moderator: moderator,
		events:    newEventPublisher(pub),
		ids:       ids,
		now:       now,
	}
}

// CreateRoom creates the chat room of a stream on behalf of its owner.
func (s *chatRoomServiceImpl) CreateRoom(ctx context.Context, streamID, callerID string, policy domain.RoomPolicy) (*domain.ChatRoom, error) {
	if callerID == "" {
		return nil, domain.ErrCallerRequired
	}

	stream, err := s.streams.GetByID(ctx, streamID)
	if err != nil {
		return nil, mapStreamError(err)
	}
	if stream.UserID != callerID {
		return nil, domain.ErrNotStreamOwner
	}

	room := s.newRoom(streamID)
	room.SlowMode = policy.SlowMode
	room.FollowersOnly = policy.FollowersOnly
	room.SubscribersOnly = policy.SubscribersOnly

	if err := s.rooms.Create(ctx, room); err != nil {
		if errors.Is(err, repository.ErrRoomExists) {
			return nil, domain.ErrRoomAlreadyExists
		}
		return nil, fmt.Errorf("create chat room: %w", err)
	}

	audit.Log(ctx, audit.ActionRoomCreate, callerID, room.ID, "chat room created")
	return room, nil
}

// EnsureRoomForLiveStream returns the stream's room, creating a default one
// when missing. Losing a creation race to another caller is not an error.
func (s *chatRoomServiceImpl) EnsureRoomForLiveStream(ctx context.Context, streamID string) (*domain.ChatRoom, error) {
	existing, err := s.rooms.GetByStreamID(ctx, streamID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrRoomNotFound) {
		return nil, err
	}

	room := s.newRoom(streamID)
	if err := s.rooms.Create(ctx, room); err != nil {
		if errors.Is(err, repository.ErrRoomExists) {
			return s.rooms.GetByStreamID(ctx, streamID)
		}
		return nil, fmt.Errorf("ensure chat room: %w", err)
	}

	l := log.Ctx(ctx)
	l.Info().Str(log.FieldStreamID, streamID).Str(log.FieldRoomID, room.ID).Msg("default chat room created")
	return room, nil
}

// UpdatePolicy applies a partial policy update on behalf of a moderator.
func (s *chatRoomServiceImpl) UpdatePolicy(ctx context.Context, roomID, callerID string, patch domain.PolicyPatch) (*domain.ChatRoom, error) {
	if callerID == "" {
		return nil, domain.ErrCallerRequired
	}
	if patch.SlowMode != nil && *patch.SlowMode < 0 {
		return nil, domain.ErrInvalidInput
	}

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, mapRoomError(err)
	}
	allowed, err := s.moderator.CanModerate(ctx, room, callerID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domain.ErrNotStreamOwner
	}
	if patch.IsEmpty() {
		return room, nil
	}

	updated, err := s.rooms.UpdatePolicy(ctx, roomID, patch, s.now().UTC())
	if err != nil {
		return nil, mapRoomError(err)
	}
	s.invalidate(ctx, updated)

	audit.LogWithDetail(ctx, audit.ActionRoomPolicy, callerID, roomID, policyDetail(updated), "chat room policy updated")
	s.events.publish(ctx, updated.StreamID, pubsub.KindChat, pubsub.EventChatRoomUpdated, pubsub.ChatRoomUpdatedPayload{
		RoomID:          updated.ID,
		IsEnabled:       updated.IsEnabled,
		SlowMode:        updated.SlowMode,
		FollowersOnly:   updated.FollowersOnly,
		SubscribersOnly: updated.SubscribersOnly,
	})
	return updated, nil
}

// GetByStreamID reads through the room cache.
func (s *chatRoomServiceImpl) GetByStreamID(ctx context.Context, streamID string) (*domain.ChatRoom, error) {
	var key string
	if s.cache != nil {
		key = s.cache.BuildKeyByStreamID(streamID)
		if room, ok := s.cached(ctx, key); ok {
			return room, nil
		}
	}

	room, err := s.rooms.GetByStreamID(ctx, streamID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, nil
		}
		return nil, err
	}
	s.store(ctx, key, room)
	return room, nil
}

// GetByID reads through the room cache.
func (s *chatRoomServiceImpl) GetByID(ctx context.Context, roomID string) (*domain.ChatRoom, error) {
	var key string
	if s.cache != nil {
		key = s.cache.BuildKeyByID(roomID)
		if room, ok := s.cached(ctx, key); ok {
			return room, nil
		}
	}

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, mapRoomError(err)
	}
	s.store(ctx, key, room)
	return room, nil
}

// GetByIDFresh skips the cache. Gates that must see a policy change at once
// read through here, since a read racing UpdatePolicy can refill the cache
// with the old row.
func (s *chatRoomServiceImpl) GetByIDFresh(ctx context.Context, roomID string) (*domain.ChatRoom, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, mapRoomError(err)
	}
	return room, nil
}

// CanModerate delegates to the configured Moderator.
func (s *chatRoomServiceImpl) CanModerate(ctx context.Context, room *domain.ChatRoom, userID string) (bool, error) {
	return s.moderator.CanModerate(ctx, room, userID)
}

func (s *chatRoomServiceImpl) newRoom(streamID string) *domain.ChatRoom {
	now := s.now().UTC()
	return &domain.ChatRoom{
		ID:        s.ids.NewID(now),
		StreamID:  streamID,
		IsEnabled: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *chatRoomServiceImpl) cached(ctx context.Context, key string) (*domain.ChatRoom, bool) {
	room, err := s.cache.Get(ctx, key)
	if err == nil {
		return room, true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str("key", key).Msg("chat room cache read failed")
	}
	return nil, false
}

func (s *chatRoomServiceImpl) store(ctx context.Context, key string, room *domain.ChatRoom) {
	if s.cache == nil || key == "" {
		return
	}
	if err := s.cache.Set(ctx, key, room, s.cacheTTL); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str("key", key).Msg("chat room cache write failed")
	}
}

func (s *chatRoomServiceImpl) invalidate(ctx context.Context, room *domain.ChatRoom) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cache.BuildKeyByID(room.ID), s.cache.BuildKeyByStreamID(room.StreamID)); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, room.ID).Msg("chat room cache invalidation failed")
	}
}

func policyDetail(room *domain.ChatRoom) string {
	slow := 0
	if room.SlowMode != nil {
		slow = *room.SlowMode
	}
	return fmt.Sprintf("enabled=%t slow_mode=%d followers_only=%t", room.IsEnabled, slow, room.IsFollowersOnly())
}

func mapRoomError(err error) error {
	if errors.Is(err, repository.ErrRoomNotFound) {
		return domain.ErrRoomNotFound
	}
	return err
}
