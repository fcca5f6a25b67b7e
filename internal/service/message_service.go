package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-io-live/internal/audit"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/idgen"
	"github.com/weiawesome/wes-io-live/internal/metrics"
	"github.com/weiawesome/wes-io-live/internal/repository"
	"github.com/weiawesome/wes-io-live/internal/store"
	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
)

const transcriptPageSize = 500

// MessageConfig bounds message content and list sizes.
type MessageConfig struct {
	MaxContentLength int
	DefaultLimit     int
	MaxLimit         int
}

func (c *MessageConfig) applyDefaults() {
	if c.MaxContentLength <= 0 {
		c.MaxContentLength = 500
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 50
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = 100
	}
	if c.DefaultLimit > c.MaxLimit {
		c.DefaultLimit = c.MaxLimit
	}
}

// messageServiceImpl implements MessageService.
type messageServiceImpl struct {
	messages repository.MessageRepository
	rooms    ChatRoomService
	streams  repository.StreamRepository
	follows  repository.FollowRepository
	users    repository.UserRepository
	limiter  store.RateLimiter
	events   eventPublisher
	ids      idgen.Generator
	cfg      MessageConfig
	now      func() time.Time
	group    singleflight.Group
}

// NewMessageService creates a new message service. A nil limiter leaves
// slow mode unenforced.
func NewMessageService(
	messages repository.MessageRepository,
	rooms ChatRoomService,
	streams repository.StreamRepository,
	follows repository.FollowRepository,
	users repository.UserRepository,
	limiter store.RateLimiter,
	pub pubsub.Publisher,
	ids idgen.Generator,
	cfg MessageConfig,
	now func() time.Time,
) MessageService {
	cfg.applyDefaults()
	if now == nil {
		now = time.Now
	}
	return &messageServiceImpl{
		messages: messages,
		rooms:    rooms,
		streams:  streams,
		follows:  follows,
		users:    users,
		limiter:  limiter,
		events:   newEventPublisher(pub),
		ids:      ids,
		cfg:      cfg,
		now:      now,
	}
}

// Send appends a message to a room.
func (s *messageServiceImpl) Send(ctx context.Context, roomID, callerID, content string, msgType domain.MessageType) (*domain.ChatMessage, error) {
	msg, err := s.send(ctx, roomID, callerID, content, msgType)
	if err != nil {
		if code := domain.CodeOf(err); code != "" {
			metrics.ChatRejections.WithLabelValues(code).Inc()
		}
		return nil, err
	}
	return msg, nil
}

func (s *messageServiceImpl) send(ctx context.Context, roomID, callerID, content string, msgType domain.MessageType) (*domain.ChatMessage, error) {
	if callerID == "" {
		return nil, domain.ErrCallerRequired
	}
	if msgType == "" {
		msgType = domain.MessageTypeMessage
	}
	if !msgType.Valid() {
		return nil, domain.ErrInvalidMessageType
	}

	room, err := s.rooms.GetByIDFresh(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsEnabled {
		return nil, domain.ErrChatDisabled
	}

	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxContentLength {
		return nil, domain.ErrContentTooLong
	}

	if err := s.enforcePolicy(ctx, room, callerID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	msg := &domain.ChatMessage{
		ID:         s.ids.NewID(now),
		ChatRoomID: room.ID,
		UserID:     callerID,
		Content:    content,
		Type:       msgType,
		CreatedAt:  now,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	metrics.ChatMessages.WithLabelValues(string(msgType)).Inc()
	s.events.publish(ctx, room.StreamID, pubsub.KindChat, pubsub.EventChatMessage, pubsub.ChatMessagePayload{
		RoomID:    room.ID,
		MessageID: msg.ID,
		UserID:    msg.UserID,
		Content:   msg.Content,
		Type:      string(msg.Type),
		CreatedAt: msg.CreatedAt.UnixMilli(),
	})
	return msg, nil
}

// enforcePolicy applies followers-only and slow mode. Moderators are exempt
// from both. Subscribers-only has no subscription model behind it and is not
// enforced.
func (s *messageServiceImpl) enforcePolicy(ctx context.Context, room *domain.ChatRoom, callerID string) error {
	interval := room.SlowModeInterval()
	if !room.IsFollowersOnly() && (interval == 0 || s.limiter == nil) {
		return nil
	}

	exempt, err := s.rooms.CanModerate(ctx, room, callerID)
	if err != nil {
		return err
	}
	if exempt {
		return nil
	}

	if room.IsFollowersOnly() {
		stream, err := s.streams.GetByID(ctx, room.StreamID)
		if err != nil {
			return mapStreamError(err)
		}
		following, err := s.follows.IsFollowing(ctx, callerID, stream.UserID)
		if err != nil {
			return err
		}
		if !following {
			return domain.ErrFollowersOnly
		}
	}

	if interval > 0 && s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, room.ID, callerID, interval)
		if err != nil {
			return fmt.Errorf("slow mode check: %w", err)
		}
		if !allowed {
			return domain.ErrSlowMode
		}
	}
	return nil
}

// List returns the newest messages of a room, oldest first, with deleted
// entries rendered as tombstones. Identical concurrent calls share one query.
func (s *messageServiceImpl) List(ctx context.Context, roomID string, limit int) ([]domain.MessageView, error) {
	limit = s.clampLimit(limit)
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return nil, err
	}

	// The shared query outlives the caller that started it.
	shared := context.WithoutCancel(ctx)
	key := fmt.Sprintf("%s:%d", roomID, limit)
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		recent, err := s.messages.ListRecent(shared, roomID, limit)
		if err != nil {
			return nil, err
		}
		for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
			recent[i], recent[j] = recent[j], recent[i]
		}
		return s.render(shared, recent)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]domain.MessageView)), nil
}

// Delete tombstones a message on behalf of its author or a moderator.
func (s *messageServiceImpl) Delete(ctx context.Context, messageID, callerID string) (bool, error) {
	if callerID == "" {
		return false, domain.ErrCallerRequired
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return false, mapMessageError(err)
	}
	room, err := s.rooms.GetByID(ctx, msg.ChatRoomID)
	if err != nil {
		return false, err
	}

	if msg.UserID != callerID {
		allowed, err := s.rooms.CanModerate(ctx, room, callerID)
		if err != nil {
			return false, err
		}
		if !allowed {
			return false, domain.ErrCannotDelete
		}
	}

	// Already deleted messages still go through SoftDelete so a store that
	// keeps more than one copy can finish an interrupted tombstone.
	deleted, err := s.messages.SoftDelete(ctx, messageID, callerID)
	if deleted {
		metrics.ChatDeletes.Inc()
		audit.Log(ctx, audit.ActionMessageDelete, callerID, messageID, "chat message deleted")
		s.events.publish(ctx, room.StreamID, pubsub.KindChat, pubsub.EventChatMessageDeleted, pubsub.ChatMessageDeletedPayload{
			RoomID:    room.ID,
			MessageID: messageID,
			DeletedBy: callerID,
		})
	}
	if err != nil {
		return false, mapMessageError(err)
	}
	return true, nil
}

// GetMessage returns the stored message, including deleted content.
func (s *messageServiceImpl) GetMessage(ctx context.Context, messageID string) (*domain.ChatMessage, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, mapMessageError(err)
	}
	return msg, nil
}

// Transcript renders the whole room history in pages.
func (s *messageServiceImpl) Transcript(ctx context.Context, roomID string) ([]domain.MessageView, error) {
	var (
		views []domain.MessageView
		after string
	)
	for {
		page, err := s.messages.ListAfter(ctx, roomID, after, transcriptPageSize)
		if err != nil {
			return nil, mapMessageError(err)
		}
		rendered, err := s.render(ctx, page)
		if err != nil {
			return nil, err
		}
		views = append(views, rendered...)
		if len(page) < transcriptPageSize {
			return views, nil
		}
		after = page[len(page)-1].ID
	}
}

func (s *messageServiceImpl) render(ctx context.Context, messages []domain.ChatMessage) ([]domain.MessageView, error) {
	seen := make(map[string]struct{}, len(messages))
	var authorIDs []string
	for i := range messages {
		if messages[i].IsDeleted {
			continue
		}
		if _, ok := seen[messages[i].UserID]; !ok {
			seen[messages[i].UserID] = struct{}{}
			authorIDs = append(authorIDs, messages[i].UserID)
		}
	}

	authors, err := s.users.GetByIDs(ctx, authorIDs)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to resolve message authors")
		authors = nil
	}

	views := make([]domain.MessageView, len(messages))
	for i := range messages {
		var profile *domain.UserProfile
		if u, ok := authors[messages[i].UserID]; ok {
			profile = u.Profile()
		}
		views[i] = messages[i].ToView(profile)
	}
	return views, nil
}

func (s *messageServiceImpl) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		return s.cfg.MaxLimit
	}
	return limit
}

func mapMessageError(err error) error {
	if errors.Is(err, repository.ErrMessageNotFound) {
		return domain.ErrMessageNotFound
	}
	return err
}
