package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-live/internal/audit"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/metrics"
	"github.com/weiawesome/wes-io-live/internal/repository"
	"github.com/weiawesome/wes-io-live/internal/store"
	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
)

// lifecycleServiceImpl implements LifecycleService.
type lifecycleServiceImpl struct {
	streams repository.StreamRepository
	rooms   ChatRoomService
	store   store.PresenceStore
	events  eventPublisher
	now     func() time.Time
}

// NewLifecycleService creates a new lifecycle service. presenceStore may be nil.
func NewLifecycleService(
	streams repository.StreamRepository,
	rooms ChatRoomService,
	presenceStore store.PresenceStore,
	pub pubsub.Publisher,
	now func() time.Time,
) LifecycleService {
	if now == nil {
		now = time.Now
	}
	return &lifecycleServiceImpl{
		streams: streams,
		rooms:   rooms,
		store:   presenceStore,
		events:  newEventPublisher(pub),
		now:     now,
	}
}

// Start takes an offline stream live. The chat room is ensured before the
// status flips so a live stream always has a room.
func (s *lifecycleServiceImpl) Start(ctx context.Context, streamID, callerID, transportHandle string) (*domain.Stream, error) {
	stream, err := s.ownedStream(ctx, streamID, callerID)
	if err != nil {
		return nil, err
	}
	if err := startable(stream.Status); err != nil {
		return nil, err
	}

	if _, err := s.rooms.EnsureRoomForLiveStream(ctx, streamID); err != nil {
		return nil, fmt.Errorf("prepare chat room: %w", err)
	}

	live, err := s.streams.MarkLive(ctx, streamID, stream.UserID, transportHandle, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, s.conflictError(ctx, streamID, startable)
		}
		return nil, mapStreamError(err)
	}

	if s.store != nil {
		if err := s.store.SetViewerCount(ctx, streamID, 0); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldStreamID, streamID).Msg("failed to add stream to live leaderboard")
		}
	}

	metrics.StreamTransitions.WithLabelValues(string(domain.StreamStatusLive)).Inc()
	audit.Log(ctx, audit.ActionStreamStart, callerID, streamID, "stream started")
	s.events.publish(ctx, streamID, pubsub.KindLifecycle, pubsub.EventStreamStarted, pubsub.StreamLifecyclePayload{
		StreamID:        streamID,
		OwnerID:         live.UserID,
		Status:          string(live.Status),
		TransportHandle: live.TransportHandle,
		PeakViewerCount: live.PeakViewerCount,
	})
	return live, nil
}

// End finishes a live stream. Sessions, messages and the peak are kept.
func (s *lifecycleServiceImpl) End(ctx context.Context, streamID, callerID string) (*domain.Stream, error) {
	stream, err := s.ownedStream(ctx, streamID, callerID)
	if err != nil {
		return nil, err
	}
	if err := endable(stream.Status); err != nil {
		return nil, err
	}

	ended, err := s.streams.MarkEnded(ctx, streamID, stream.UserID, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, s.conflictError(ctx, streamID, endable)
		}
		return nil, mapStreamError(err)
	}

	if s.store != nil {
		if err := s.store.RemoveStream(ctx, streamID); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldStreamID, streamID).Msg("failed to remove stream from live leaderboard")
		}
	}

	metrics.LiveViewers.DeleteLabelValues(streamID)
	metrics.StreamTransitions.WithLabelValues(string(domain.StreamStatusEnded)).Inc()
	audit.Log(ctx, audit.ActionStreamEnd, callerID, streamID, "stream ended")
	s.events.publish(ctx, streamID, pubsub.KindLifecycle, pubsub.EventStreamEnded, pubsub.StreamLifecyclePayload{
		StreamID:        streamID,
		OwnerID:         ended.UserID,
		Status:          string(ended.Status),
		PeakViewerCount: ended.PeakViewerCount,
	})
	return ended, nil
}

func (s *lifecycleServiceImpl) ownedStream(ctx context.Context, streamID, callerID string) (*domain.Stream, error) {
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
	return stream, nil
}

// conflictError explains a lost conditional update from the current status.
func (s *lifecycleServiceImpl) conflictError(ctx context.Context, streamID string, check func(domain.StreamStatus) error) error {
	current, err := s.streams.GetByID(ctx, streamID)
	if err != nil {
		return mapStreamError(err)
	}
	if err := check(current.Status); err != nil {
		return err
	}
	return fmt.Errorf("stream %s changed status concurrently: %w", streamID, domain.ErrInvalidState)
}

func startable(status domain.StreamStatus) error {
	switch status {
	case domain.StreamStatusOffline:
		return nil
	case domain.StreamStatusLive:
		return domain.ErrAlreadyLive
	default:
		return domain.ErrStreamEnded
	}
}

func endable(status domain.StreamStatus) error {
	if status != domain.StreamStatusLive {
		return domain.ErrNotLive
	}
	return nil
}
