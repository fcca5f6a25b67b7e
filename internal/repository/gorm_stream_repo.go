package repository

import (
	"context"
	"errors"
	"slices"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/pkg/log"
)

// GormStreamRepository implements StreamRepository using GORM.
type GormStreamRepository struct {
	db *gorm.DB
}

// NewGormStreamRepository creates a new GORM-based stream repository.
func NewGormStreamRepository(db *gorm.DB) *GormStreamRepository {
	return &GormStreamRepository{db: db}
}

var _ StreamRepository = (*GormStreamRepository)(nil)

// Create inserts a new stream.
func (r *GormStreamRepository) Create(ctx context.Context, stream *domain.Stream) error {
	l := log.Ctx(ctx)

	model := domain.StreamToModel(stream)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Msg("failed to create stream in db")
		return err
	}

	stream.CreatedAt = model.CreatedAt
	stream.UpdatedAt = model.UpdatedAt
	l.Debug().Str(log.FieldStreamID, stream.ID).Msg("stream created in db")
	return nil
}

// GetByID retrieves a stream by ID.
func (r *GormStreamRepository) GetByID(ctx context.Context, id string) (*domain.Stream, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByTransportHandle retrieves the stream bound to a media transport handle.
func (r *GormStreamRepository) GetByTransportHandle(ctx context.Context, handle string) (*domain.Stream, error) {
	if handle == "" {
		return nil, ErrStreamNotFound
	}
	return r.first(ctx, "transport_handle = ?", handle)
}

func (r *GormStreamRepository) first(ctx context.Context, query string, arg string) (*domain.Stream, error) {
	l := log.Ctx(ctx)

	var model domain.StreamModel
	err := r.db.WithContext(ctx).Order("created_at DESC").First(&model, query, arg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStreamNotFound
		}
		l.Error().Err(err).Str("query", query).Msg("failed to get stream")
		return nil, err
	}
	return model.ToDomain(), nil
}

// GetByIDs retrieves the streams with the given IDs in no particular order.
func (r *GormStreamRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Stream, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var models []domain.StreamModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to get streams by ids")
		return nil, err
	}
	return toStreams(models), nil
}

// UpdateMetadata applies a partial update of the display fields.
func (r *GormStreamRepository) UpdateMetadata(ctx context.Context, id string, req *domain.UpdateStreamRequest, now time.Time) (*domain.Stream, error) {
	l := log.Ctx(ctx)

	updates := map[string]interface{}{"updated_at": now}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if req.ThumbnailURL != nil {
		updates["thumbnail_url"] = *req.ThumbnailURL
	}

	result := r.db.WithContext(ctx).Model(&domain.StreamModel{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldStreamID, id).Msg("failed to update stream in db")
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrStreamNotFound
	}
	return r.GetByID(ctx, id)
}

// ListByUser returns all streams of a user, newest first.
func (r *GormStreamRepository) ListByUser(ctx context.Context, userID string) ([]domain.Stream, error) {
	var models []domain.StreamModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&models).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to list user streams")
		return nil, err
	}
	return toStreams(models), nil
}

// ListByUserPage returns up to limit+1 streams of a user strictly after the
// cursor stream in (created_at DESC, id DESC) order.
func (r *GormStreamRepository) ListByUserPage(ctx context.Context, userID, cursor string, limit int) ([]domain.Stream, error) {
	l := log.Ctx(ctx)

	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if cursor != "" {
		var anchor domain.StreamModel
		err := r.db.WithContext(ctx).Select("id", "created_at").
			First(&anchor, "id = ? AND user_id = ?", cursor, userID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrStreamNotFound
			}
			return nil, err
		}
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", anchor.CreatedAt, anchor.CreatedAt, anchor.ID)
	}

	var models []domain.StreamModel
	err := query.Order("created_at DESC").Order("id DESC").Limit(limit + 1).Find(&models).Error
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to page user streams")
		return nil, err
	}
	return toStreams(models), nil
}

// ListLive returns live streams with the highest cached viewer counts first.
func (r *GormStreamRepository) ListLive(ctx context.Context, limit int) ([]domain.Stream, error) {
	var models []domain.StreamModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.StreamStatusLive)).
		Order("viewer_count DESC").Order("started_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to list live streams")
		return nil, err
	}
	return toStreams(models), nil
}

// ListLiveIDs returns the IDs of every live stream.
func (r *GormStreamRepository) ListLiveIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&domain.StreamModel{}).
		Where("status = ?", string(domain.StreamStatusLive)).
		Pluck("id", &ids).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to list live stream ids")
		return nil, err
	}
	return ids, nil
}

// MarkLive transitions offline -> live and sets the owner's live flag in one transaction.
func (r *GormStreamRepository) MarkLive(ctx context.Context, id, ownerID, transportHandle string, now time.Time) (*domain.Stream, error) {
	updates := map[string]interface{}{
		"status":           string(domain.StreamStatusLive),
		"started_at":       now,
		"transport_handle": transportHandle,
		"updated_at":       now,
	}
	return r.transition(ctx, id, ownerID, domain.StreamStatusOffline, updates, true, now)
}

// MarkEnded transitions live -> ended and clears the owner's live flag in one transaction.
// Viewer counts are left as they were at the last recomputation.
func (r *GormStreamRepository) MarkEnded(ctx context.Context, id, ownerID string, now time.Time) (*domain.Stream, error) {
	updates := map[string]interface{}{
		"status":     string(domain.StreamStatusEnded),
		"ended_at":   now,
		"updated_at": now,
	}
	return r.transition(ctx, id, ownerID, domain.StreamStatusLive, updates, false, now)
}

func (r *GormStreamRepository) transition(
	ctx context.Context,
	id, ownerID string,
	from domain.StreamStatus,
	updates map[string]interface{},
	ownerLive bool,
	now time.Time,
) (*domain.Stream, error) {
	l := log.Ctx(ctx)

	var model domain.StreamModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.StreamModel{}).
			Where("id = ? AND status = ?", id, string(from)).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStatusConflict
		}

		if !ownerLive {
			// The owner stays live while another of their streams is.
			var others int64
			if err := tx.Model(&domain.StreamModel{}).
				Where("user_id = ? AND status = ?", ownerID, string(domain.StreamStatusLive)).
				Count(&others).Error; err != nil {
				return err
			}
			ownerLive = others > 0
		}

		if err := tx.Model(&domain.UserModel{}).
			Where("id = ?", ownerID).
			Updates(map[string]interface{}{"is_live": ownerLive, "updated_at": now}).Error; err != nil {
			return err
		}

		return tx.First(&model, "id = ?", id).Error
	})
	if err != nil {
		if !errors.Is(err, ErrStatusConflict) {
			l.Error().Err(err).Str(log.FieldStreamID, id).Msg("failed to transition stream status")
		}
		return nil, err
	}

	l.Debug().Str(log.FieldStreamID, id).Str("status", model.Status).Msg("stream status changed in db")
	return model.ToDomain(), nil
}

// CountByUser counts the streams a user has created.
func (r *GormStreamRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.StreamModel{}).Where("user_id = ?", userID).Count(&count).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to count user streams")
	}
	return count, err
}

// SumPeakViewersByUser sums the peak viewer counts over all of a user's streams.
func (r *GormStreamRepository) SumPeakViewersByUser(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&domain.StreamModel{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(peak_viewer_count), 0)").
		Scan(&total).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to sum peak viewers")
	}
	return total, err
}

// lockStream loads a stream row for update inside tx. Row locks serialise
// concurrent recomputations of the same stream; sqlite ignores the clause
// and serialises writers on its own.
func lockStream(tx *gorm.DB, id string) (*domain.StreamModel, error) {
	var model domain.StreamModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStreamNotFound
		}
		return nil, err
	}
	return &model, nil
}

// lockStreams locks the given stream rows in id order, so transactions that
// touch the same pair of streams cannot deadlock. Empty and unknown ids are
// skipped; the result holds the rows that exist.
func lockStreams(tx *gorm.DB, ids ...string) (map[string]*domain.StreamModel, error) {
	sorted := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(sorted, id) {
			sorted = append(sorted, id)
		}
	}
	slices.Sort(sorted)

	locked := make(map[string]*domain.StreamModel, len(sorted))
	for _, id := range sorted {
		model, err := lockStream(tx, id)
		if errors.Is(err, ErrStreamNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		locked[id] = model
	}
	return locked, nil
}

func toStreams(models []domain.StreamModel) []domain.Stream {
	streams := make([]domain.Stream, len(models))
	for i := range models {
		streams[i] = *models[i].ToDomain()
	}
	return streams
}
