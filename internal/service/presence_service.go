package service

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/idgen"
	"github.com/weiawesome/wes-io-live/internal/metrics"
	"github.com/weiawesome/wes-io-live/internal/repository"
	"github.com/weiawesome/wes-io-live/internal/store"
	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

// ValidateSessionID checks a client chosen session id.
func ValidateSessionID(sessionID string) error {
	if !sessionIDPattern.MatchString(sessionID) {
		return domain.ErrInvalidSessionID
	}
	return nil
}

// presenceServiceImpl implements PresenceService.
type presenceServiceImpl struct {
	sessions repository.SessionRepository
	store    store.PresenceStore
	events   eventPublisher
	ids      idgen.Generator
	window   time.Duration
	now      func() time.Time
}

// NewPresenceService creates a new presence service. store may be nil.
func NewPresenceService(
	sessions repository.SessionRepository,
	presenceStore store.PresenceStore,
	pub pubsub.Publisher,
	ids idgen.Generator,
	window time.Duration,
	now func() time.Time,
) PresenceService {
	if window <= 0 {
		window = domain.DefaultActiveWindow
	}
	if now == nil {
		now = time.Now
	}
	return &presenceServiceImpl{
		sessions: sessions,
		store:    presenceStore,
		events:   newEventPublisher(pub),
		ids:      ids,
		window:   window,
		now:      now,
	}
}

// Join registers a viewer session, or refreshes it on re-join.
func (s *presenceServiceImpl) Join(ctx context.Context, streamID, sessionID, viewerUserID string) (*domain.SessionHandle, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &domain.ViewerSession{
		ID:           s.ids.NewID(now),
		StreamID:     streamID,
		SessionID:    sessionID,
		JoinedAt:     now,
		LastActiveAt: now,
	}
	if viewerUserID != "" {
		session.UserID = &viewerUserID
	}

	stored, existed, count, err := s.sessions.Join(ctx, session, s.window)
	if err != nil {
		return nil, mapStreamError(err)
	}

	metrics.ViewerJoins.WithLabelValues(strconv.FormatBool(existed)).Inc()
	s.afterRecompute(ctx, count)

	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldStreamID, streamID).
		Str(log.FieldSessionID, sessionID).
		Bool("rejoin", existed).
		Int64("viewer_count", count.Live).
		Msg("viewer joined")

	return &domain.SessionHandle{
		ID:           stored.ID,
		StreamID:     stored.StreamID,
		SessionID:    stored.SessionID,
		JoinedAt:     stored.JoinedAt,
		LastActiveAt: stored.LastActiveAt,
		ViewerCount:  count.Live,
	}, nil
}

// Heartbeat keeps a session inside the active window. Counts are not
// recomputed; the sweeper and the next join or leave pick the change up.
func (s *presenceServiceImpl) Heartbeat(ctx context.Context, sessionID string) (bool, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return false, err
	}
	return s.sessions.Heartbeat(ctx, sessionID, s.now().UTC())
}

// Leave removes a session and recomputes its stream.
func (s *presenceServiceImpl) Leave(ctx context.Context, sessionID string) (bool, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return false, err
	}

	deleted, count, err := s.sessions.Leave(ctx, sessionID, s.now().UTC(), s.window)
	if err != nil {
		return false, mapStreamError(err)
	}
	if deleted {
		metrics.ViewerLeaves.Inc()
		s.afterRecompute(ctx, count)
	}
	return deleted, nil
}

// Recompute recounts active sessions and updates the stream's counts.
func (s *presenceServiceImpl) Recompute(ctx context.Context, streamID string) (*domain.ViewerCount, error) {
	count, err := s.sessions.Recompute(ctx, streamID, s.now().UTC(), s.window)
	if err != nil {
		return nil, mapStreamError(err)
	}
	s.afterRecompute(ctx, count)
	return count, nil
}

// GetViewerCount recomputes from the session rows rather than trusting the
// cached field on the stream.
func (s *presenceServiceImpl) GetViewerCount(ctx context.Context, streamID string) (int64, error) {
	count, err := s.Recompute(ctx, streamID)
	if err != nil {
		return 0, err
	}
	return count.Live, nil
}

func (s *presenceServiceImpl) afterRecompute(ctx context.Context, count *domain.ViewerCount) {
	if count == nil {
		return
	}
	l := log.Ctx(ctx)

	if count.Status == domain.StreamStatusLive {
		metrics.LiveViewers.WithLabelValues(count.StreamID).Set(float64(count.Live))
	}

	if s.store != nil && count.Status == domain.StreamStatusLive {
		if err := s.store.SetViewerCount(ctx, count.StreamID, count.Live); err != nil {
			l.Warn().Err(err).Str(log.FieldStreamID, count.StreamID).Msg("failed to update live leaderboard")
		}
		cached, err := s.store.ObservePeak(ctx, count.StreamID, count.Live)
		if err != nil {
			l.Warn().Err(err).Str(log.FieldStreamID, count.StreamID).Msg("failed to update cached peak")
		} else if cached > count.Peak {
			l.Warn().
				Str(log.FieldStreamID, count.StreamID).
				Int64("cached_peak", cached).
				Int64("stored_peak", count.Peak).
				Msg("cached peak ahead of stored peak")
		}
	}

	s.events.publish(ctx, count.StreamID, pubsub.KindPresence, pubsub.EventViewerCount, pubsub.ViewerCountPayload{
		StreamID:        count.StreamID,
		ViewerCount:     count.Live,
		PeakViewerCount: count.Peak,
	})
}

// mapStreamError converts repository stream errors to domain errors.
func mapStreamError(err error) error {
	switch {
	case errors.Is(err, repository.ErrStreamNotFound):
		return domain.ErrStreamNotFound
	case errors.Is(err, repository.ErrStreamNotLive):
		return domain.ErrStreamNotLive
	default:
		return err
	}
}
