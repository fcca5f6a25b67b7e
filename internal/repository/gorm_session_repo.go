package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/pkg/log"
)

// GormSessionRepository implements SessionRepository using GORM.
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a new GORM-based session repository.
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

var _ SessionRepository = (*GormSessionRepository)(nil)

// errSessionMoved reports that a session changed stream between the first
// read and taking the stream locks. The caller retries.
var errSessionMoved = errors.New("session moved to another stream")

const sessionAttempts = 3

// retrySession runs fn again when it lost a race that a fresh attempt can win.
func retrySession(fn func() error) error {
	var err error
	for attempt := 0; attempt < sessionAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, gorm.ErrDuplicatedKey) && !errors.Is(err, errSessionMoved) {
			return err
		}
	}
	return err
}

// Join inserts a session or bumps the existing one with the same session id,
// then recomputes the stream's counts. The stream rows are locked first, so
// the live check, the session write and the count update are one unit.
// A session id reused on another stream moves to the new stream.
func (r *GormSessionRepository) Join(ctx context.Context, session *domain.ViewerSession, window time.Duration) (*domain.ViewerSession, bool, *domain.ViewerCount, error) {
	var (
		stored   *domain.ViewerSession
		rejoined bool
		count    *domain.ViewerCount
	)
	// Two first joins of one session id may race to insert; the loser
	// retries and takes the bump path.
	err := retrySession(func() error {
		var err error
		stored, rejoined, count, err = r.join(ctx, session, window)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrStreamNotFound) && !errors.Is(err, ErrStreamNotLive) {
			l := log.Ctx(ctx)
			l.Error().Err(err).Str(log.FieldSessionID, session.SessionID).Msg("failed to join stream")
		}
		return nil, false, nil, err
	}
	return stored, rejoined, count, nil
}

func (r *GormSessionRepository) join(ctx context.Context, session *domain.ViewerSession, window time.Duration) (*domain.ViewerSession, bool, *domain.ViewerCount, error) {
	now := session.LastActiveAt

	var (
		stored   domain.ViewerSessionModel
		rejoined bool
		count    *domain.ViewerCount
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		previousStream := ""
		var existing domain.ViewerSessionModel
		err := tx.Where("session_id = ?", session.SessionID).First(&existing).Error
		switch {
		case err == nil:
			if existing.StreamID != session.StreamID {
				previousStream = existing.StreamID
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		locked, err := lockStreams(tx, session.StreamID, previousStream)
		if err != nil {
			return err
		}
		stream, ok := locked[session.StreamID]
		if !ok {
			return ErrStreamNotFound
		}
		if stream.Status != string(domain.StreamStatusLive) {
			return ErrStreamNotLive
		}

		// Read again under the locks; a concurrent join may have moved it.
		err = tx.Where("session_id = ?", session.SessionID).First(&stored).Error
		switch {
		case err == nil:
			if stored.StreamID != session.StreamID && stored.StreamID != previousStream {
				return errSessionMoved
			}
			rejoined = true
			if stored.StreamID == session.StreamID {
				previousStream = ""
			}
			if err := tx.Model(&domain.ViewerSessionModel{}).
				Where("id = ?", stored.ID).
				UpdateColumns(map[string]interface{}{
					"stream_id":      session.StreamID,
					"last_active_at": now,
				}).Error; err != nil {
				return err
			}
			stored.StreamID = session.StreamID
			stored.LastActiveAt = now
		case errors.Is(err, gorm.ErrRecordNotFound):
			previousStream = ""
			stored = domain.ViewerSessionModel{
				ID:           session.ID,
				StreamID:     session.StreamID,
				UserID:       session.UserID,
				SessionID:    session.SessionID,
				JoinedAt:     session.JoinedAt,
				LastActiveAt: now,
			}
			if err := tx.Create(&stored).Error; err != nil {
				return err
			}
		default:
			return err
		}

		count, err = recompute(tx, session.StreamID, now, window)
		if err != nil {
			return err
		}
		if _, ok := locked[previousStream]; ok && previousStream != "" {
			if _, err := recompute(tx, previousStream, now, window); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, nil, err
	}

	return stored.ToDomain(), rejoined, count, nil
}

// Heartbeat bumps lastActiveAt. It reports false when the session is unknown.
func (r *GormSessionRepository) Heartbeat(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.ViewerSessionModel{}).
		Where("session_id = ?", sessionID).
		Update("last_active_at", now)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldSessionID, sessionID).Msg("failed to heartbeat session")
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Leave deletes the session and recomputes its stream's counts.
func (r *GormSessionRepository) Leave(ctx context.Context, sessionID string, now time.Time, window time.Duration) (bool, *domain.ViewerCount, error) {
	var (
		deleted bool
		count   *domain.ViewerCount
	)
	err := retrySession(func() error {
		var err error
		deleted, count, err = r.leave(ctx, sessionID, now, window)
		return err
	})
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to leave stream")
		return false, nil, err
	}
	return deleted, count, nil
}

func (r *GormSessionRepository) leave(ctx context.Context, sessionID string, now time.Time, window time.Duration) (bool, *domain.ViewerCount, error) {
	var (
		deleted bool
		count   *domain.ViewerCount
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.ViewerSessionModel
		err := tx.Where("session_id = ?", sessionID).First(&existing).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if _, err := lockStream(tx, existing.StreamID); err != nil {
			return err
		}

		result := tx.Where("session_id = ? AND stream_id = ?", sessionID, existing.StreamID).Delete(&domain.ViewerSessionModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var remaining int64
			if err := tx.Model(&domain.ViewerSessionModel{}).Where("session_id = ?", sessionID).Count(&remaining).Error; err != nil {
				return err
			}
			if remaining > 0 {
				return errSessionMoved
			}
			// A concurrent leave won.
			return nil
		}
		deleted = true

		count, err = recompute(tx, existing.StreamID, now, window)
		return err
	})
	if err != nil {
		return false, nil, err
	}
	return deleted, count, nil
}

// Recompute counts active sessions and writes viewer_count and the monotonic peak.
func (r *GormSessionRepository) Recompute(ctx context.Context, streamID string, now time.Time, window time.Duration) (*domain.ViewerCount, error) {
	var count *domain.ViewerCount
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockStream(tx, streamID); err != nil {
			return err
		}
		var err error
		count, err = recompute(tx, streamID, now, window)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrStreamNotFound) {
			l := log.Ctx(ctx)
			l.Error().Err(err).Str(log.FieldStreamID, streamID).Msg("failed to recompute viewer count")
		}
		return nil, err
	}
	return count, nil
}

// CountActive counts sessions of a stream active after since.
func (r *GormSessionRepository) CountActive(ctx context.Context, streamID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.ViewerSessionModel{}).
		Where("stream_id = ? AND last_active_at > ?", streamID, since).
		Count(&count).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldStreamID, streamID).Msg("failed to count active sessions")
	}
	return count, err
}

// GetBySessionID retrieves a session by its client session id.
func (r *GormSessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.ViewerSession, error) {
	var model domain.ViewerSessionModel
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// DeleteStale removes sessions of live streams idle since before the cutoff.
// Sessions of ended streams are kept as viewer history.
func (r *GormSessionRepository) DeleteStale(ctx context.Context, before time.Time) (int64, []string, error) {
	l := log.Ctx(ctx)

	stale := func() *gorm.DB {
		live := r.db.Model(&domain.StreamModel{}).Select("id").Where("status = ?", string(domain.StreamStatusLive))
		return r.db.WithContext(ctx).Model(&domain.ViewerSessionModel{}).
			Where("last_active_at <= ? AND stream_id IN (?)", before, live)
	}

	var streamIDs []string
	if err := stale().Distinct().Pluck("stream_id", &streamIDs).Error; err != nil {
		l.Error().Err(err).Msg("failed to find streams with stale sessions")
		return 0, nil, err
	}
	if len(streamIDs) == 0 {
		return 0, nil, nil
	}

	result := stale().Delete(&domain.ViewerSessionModel{})
	if result.Error != nil {
		l.Error().Err(result.Error).Msg("failed to delete stale sessions")
		return 0, nil, result.Error
	}
	return result.RowsAffected, streamIDs, nil
}

// recompute must run inside a transaction holding the stream row lock.
// The peak is raised with a conditional expression evaluated by the
// database against the current row, so it can only grow.
func recompute(tx *gorm.DB, streamID string, now time.Time, window time.Duration) (*domain.ViewerCount, error) {
	var live int64
	if err := tx.Model(&domain.ViewerSessionModel{}).
		Where("stream_id = ? AND last_active_at > ?", streamID, now.Add(-window)).
		Count(&live).Error; err != nil {
		return nil, err
	}

	if err := tx.Model(&domain.StreamModel{}).
		Where("id = ?", streamID).
		UpdateColumns(map[string]interface{}{
			"viewer_count":      live,
			"peak_viewer_count": gorm.Expr("CASE WHEN peak_viewer_count < ? THEN ? ELSE peak_viewer_count END", live, live),
		}).Error; err != nil {
		return nil, err
	}

	var row struct {
		PeakViewerCount int64
		Status          string
	}
	if err := tx.Model(&domain.StreamModel{}).
		Where("id = ?", streamID).
		Select("peak_viewer_count, status").
		Scan(&row).Error; err != nil {
		return nil, err
	}

	return &domain.ViewerCount{
		StreamID: streamID,
		Live:     live,
		Peak:     row.PeakViewerCount,
		Status:   domain.StreamStatus(row.Status),
	}, nil
}
