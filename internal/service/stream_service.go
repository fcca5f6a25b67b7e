package service

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/idgen"
	"github.com/weiawesome/wes-io-live/internal/repository"
	"github.com/weiawesome/wes-io-live/internal/store"
	"github.com/weiawesome/wes-io-live/pkg/log"
)

const (
	defaultLiveLimit = 20
	maxLiveLimit     = 100
)

// streamServiceImpl implements StreamService.
type streamServiceImpl struct {
	streams repository.StreamRepository
	users   repository.UserRepository
	store   store.PresenceStore
	ids     idgen.Generator
	now     func() time.Time
}

// NewStreamService creates a new stream service. presenceStore may be nil,
// in which case live listings are ordered by the stored viewer count.
func NewStreamService(
	streams repository.StreamRepository,
	users repository.UserRepository,
	presenceStore store.PresenceStore,
	ids idgen.Generator,
	now func() time.Time,
) StreamService {
	if now == nil {
		now = time.Now
	}
	return &streamServiceImpl{
		streams: streams,
		users:   users,
		store:   presenceStore,
		ids:     ids,
		now:     now,
	}
}

// Create creates an offline stream owned by the caller.
func (s *streamServiceImpl) Create(ctx context.Context, callerID string, req *domain.CreateStreamRequest) (*domain.Stream, error) {
	if callerID == "" {
		return nil, domain.ErrCallerRequired
	}

	now := s.now().UTC()
	stream := &domain.Stream{
		ID:           s.ids.NewID(now),
		UserID:       callerID,
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		ThumbnailURL: req.ThumbnailURL,
		Status:       domain.StreamStatusOffline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.streams.Create(ctx, stream); err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}
	return stream, nil
}

// Update changes display metadata on behalf of the owner.
func (s *streamServiceImpl) Update(ctx context.Context, streamID, callerID string, req *domain.UpdateStreamRequest) (*domain.Stream, error) {
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

	updated, err := s.streams.UpdateMetadata(ctx, streamID, req, s.now().UTC())
	if err != nil {
		return nil, mapStreamError(err)
	}
	return updated, nil
}

// GetByID returns a stream with its streamer's profile.
func (s *streamServiceImpl) GetByID(ctx context.Context, streamID string) (*domain.StreamWithStreamer, error) {
	stream, err := s.streams.GetByID(ctx, streamID)
	if err != nil {
		return nil, mapStreamError(err)
	}
	withStreamers, err := s.attachStreamers(ctx, []domain.Stream{*stream})
	if err != nil {
		return nil, err
	}
	return &withStreamers[0], nil
}

// GetByTransportHandle resolves the stream bound to a media transport handle.
func (s *streamServiceImpl) GetByTransportHandle(ctx context.Context, handle string) (*domain.Stream, error) {
	stream, err := s.streams.GetByTransportHandle(ctx, handle)
	if err != nil {
		return nil, mapStreamError(err)
	}
	return stream, nil
}

// ListByUser returns every stream of a user, newest first.
func (s *streamServiceImpl) ListByUser(ctx context.Context, userID string) ([]domain.Stream, error) {
	return s.streams.ListByUser(ctx, userID)
}

// ListLive returns live streams, most watched first. The Redis leaderboard
// provides the order; the database is used when it is empty or unavailable.
func (s *streamServiceImpl) ListLive(ctx context.Context, limit int) ([]domain.StreamWithStreamer, error) {
	if limit <= 0 {
		limit = defaultLiveLimit
	}
	if limit > maxLiveLimit {
		limit = maxLiveLimit
	}

	streams, err := s.liveFromLeaderboard(ctx, limit)
	if err != nil || len(streams) == 0 {
		streams, err = s.streams.ListLive(ctx, limit)
		if err != nil {
			return nil, err
		}
	}
	return s.attachStreamers(ctx, streams)
}

func (s *streamServiceImpl) liveFromLeaderboard(ctx context.Context, limit int) ([]domain.Stream, error) {
	if s.store == nil {
		return nil, nil
	}
	l := log.Ctx(ctx)

	ids, err := s.store.TopLive(ctx, limit)
	if err != nil {
		l.Warn().Err(err).Msg("live leaderboard unavailable, falling back to database")
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	found, err := s.streams.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Stream, len(found))
	for _, st := range found {
		byID[st.ID] = st
	}

	ordered := make([]domain.Stream, 0, len(ids))
	for _, id := range ids {
		if st, ok := byID[id]; ok && st.IsLive() {
			ordered = append(ordered, st)
		}
	}
	return ordered, nil
}

func (s *streamServiceImpl) attachStreamers(ctx context.Context, streams []domain.Stream) ([]domain.StreamWithStreamer, error) {
	ownerIDs := make([]string, 0, len(streams))
	seen := make(map[string]struct{}, len(streams))
	for _, st := range streams {
		if _, ok := seen[st.UserID]; !ok {
			seen[st.UserID] = struct{}{}
			ownerIDs = append(ownerIDs, st.UserID)
		}
	}

	owners, err := s.users.GetByIDs(ctx, ownerIDs)
	if err != nil {
		return nil, err
	}

	out := make([]domain.StreamWithStreamer, len(streams))
	for i := range streams {
		st := streams[i]
		out[i] = domain.StreamWithStreamer{Stream: &st}
		if owner, ok := owners[st.UserID]; ok {
			out[i].Streamer = owner.Profile()
		}
	}
	return out, nil
}
