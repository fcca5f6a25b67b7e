package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/pkg/log"
)

// GormChatRoomRepository implements ChatRoomRepository using GORM.
type GormChatRoomRepository struct {
	db *gorm.DB
}

// NewGormChatRoomRepository creates a new GORM-based chat room repository.
func NewGormChatRoomRepository(db *gorm.DB) *GormChatRoomRepository {
	return &GormChatRoomRepository{db: db}
}

var _ ChatRoomRepository = (*GormChatRoomRepository)(nil)

// Create inserts a room. The unique index on stream_id turns a second room
// for the same stream into ErrRoomExists.
func (r *GormChatRoomRepository) Create(ctx context.Context, room *domain.ChatRoom) error {
	l := log.Ctx(ctx)

	model := domain.ChatRoomToModel(room)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrRoomExists
		}
		l.Error().Err(err).Str(log.FieldStreamID, room.StreamID).Msg("failed to create chat room in db")
		return err
	}

	room.CreatedAt = model.CreatedAt
	room.UpdatedAt = model.UpdatedAt
	l.Debug().Str(log.FieldRoomID, room.ID).Str(log.FieldStreamID, room.StreamID).Msg("chat room created in db")
	return nil
}

// GetByID retrieves a room by ID.
func (r *GormChatRoomRepository) GetByID(ctx context.Context, id string) (*domain.ChatRoom, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByStreamID retrieves the room of a stream.
func (r *GormChatRoomRepository) GetByStreamID(ctx context.Context, streamID string) (*domain.ChatRoom, error) {
	return r.first(ctx, "stream_id = ?", streamID)
}

func (r *GormChatRoomRepository) first(ctx context.Context, query, arg string) (*domain.ChatRoom, error) {
	var model domain.ChatRoomModel
	err := r.db.WithContext(ctx).First(&model, query, arg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str("query", query).Msg("failed to get chat room")
		return nil, err
	}
	return model.ToDomain(), nil
}

// UpdatePolicy applies the non-nil fields of patch.
func (r *GormChatRoomRepository) UpdatePolicy(ctx context.Context, id string, patch domain.PolicyPatch, now time.Time) (*domain.ChatRoom, error) {
	l := log.Ctx(ctx)

	updates := map[string]interface{}{"updated_at": now}
	if patch.IsEnabled != nil {
		updates["is_enabled"] = *patch.IsEnabled
	}
	if patch.SlowMode != nil {
		updates["slow_mode"] = *patch.SlowMode
	}
	if patch.FollowersOnly != nil {
		updates["followers_only"] = *patch.FollowersOnly
	}
	if patch.SubscribersOnly != nil {
		updates["subscribers_only"] = *patch.SubscribersOnly
	}

	result := r.db.WithContext(ctx).Model(&domain.ChatRoomModel{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldRoomID, id).Msg("failed to update chat room policy")
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrRoomNotFound
	}
	return r.GetByID(ctx, id)
}

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

var _ MessageRepository = (*GormMessageRepository)(nil)

// Create appends a message.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	if err := r.db.WithContext(ctx).Create(domain.ChatMessageToModel(msg)).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, msg.ChatRoomID).Msg("failed to create message in db")
		return err
	}
	return nil
}

// GetByID retrieves a message with its stored content.
func (r *GormMessageRepository) GetByID(ctx context.Context, id string) (*domain.ChatMessage, error) {
	var model domain.ChatMessageModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldMessageID, id).Msg("failed to get message")
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListRecent returns the newest limit messages of a room, newest first.
func (r *GormMessageRepository) ListRecent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	var models []domain.ChatMessageModel
	err := r.db.WithContext(ctx).
		Where("chat_room_id = ?", roomID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to list messages")
		return nil, err
	}
	return toMessages(models), nil
}

// ListAfter returns up to limit messages following afterID, oldest first.
// An empty afterID starts at the beginning of the room.
func (r *GormMessageRepository) ListAfter(ctx context.Context, roomID, afterID string, limit int) ([]domain.ChatMessage, error) {
	query := r.db.WithContext(ctx).Where("chat_room_id = ?", roomID)
	if afterID != "" {
		var anchor domain.ChatMessageModel
		err := r.db.WithContext(ctx).Select("id", "created_at").
			First(&anchor, "id = ? AND chat_room_id = ?", afterID, roomID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrMessageNotFound
			}
			return nil, err
		}
		query = query.Where("created_at > ? OR (created_at = ? AND id > ?)", anchor.CreatedAt, anchor.CreatedAt, anchor.ID)
	}

	var models []domain.ChatMessageModel
	err := query.Order("created_at ASC").Order("id ASC").Limit(limit).Find(&models).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to page messages")
		return nil, err
	}
	return toMessages(models), nil
}

// SoftDelete marks a message deleted. Content is never touched.
func (r *GormMessageRepository) SoftDelete(ctx context.Context, id, deletedBy string) (bool, error) {
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).Model(&domain.ChatMessageModel{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{"is_deleted": true, "deleted_by": deletedBy})
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldMessageID, id).Msg("failed to delete message")
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.ChatMessageModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, ErrMessageNotFound
	}
	return false, nil
}

func toMessages(models []domain.ChatMessageModel) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, len(models))
	for i := range models {
		messages[i] = *models[i].ToDomain()
	}
	return messages
}
