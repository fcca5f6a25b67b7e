package service

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// dashboardServiceImpl implements DashboardService.
type dashboardServiceImpl struct {
	streams repository.StreamRepository
	follows repository.FollowRepository
}

// NewDashboardService creates a new dashboard service.
func NewDashboardService(streams repository.StreamRepository, follows repository.FollowRepository) DashboardService {
	return &dashboardServiceImpl{streams: streams, follows: follows}
}

// GetStats gathers the caller's channel numbers concurrently.
// TotalViews is the sum of peak viewer counts over all streams.
func (s *dashboardServiceImpl) GetStats(ctx context.Context, callerID string) (*domain.DashboardStats, error) {
	if callerID == "" {
		return nil, domain.ErrCallerRequired
	}

	var stats domain.DashboardStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.FollowerCount, err = s.follows.CountFollowers(gctx, callerID)
		return err
	})
	g.Go(func() (err error) {
		stats.FollowingCount, err = s.follows.CountFollowing(gctx, callerID)
		return err
	})
	g.Go(func() (err error) {
		stats.StreamCount, err = s.streams.CountByUser(gctx, callerID)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalViews, err = s.streams.SumPeakViewersByUser(gctx, callerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetMyStreams pages through the caller's streams, newest first.
func (s *dashboardServiceImpl) GetMyStreams(ctx context.Context, callerID string, limit int, cursor string) (*domain.StreamPage, error) {
	if callerID == "" {
		return nil, domain.ErrCallerRequired
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	streams, err := s.streams.ListByUserPage(ctx, callerID, cursor, limit)
	if err != nil {
		if errors.Is(err, repository.ErrStreamNotFound) {
			return nil, domain.ErrInvalidCursor
		}
		return nil, err
	}

	page := &domain.StreamPage{Streams: streams}
	if len(streams) > limit {
		page.Streams = streams[:limit]
		next := page.Streams[limit-1].ID
		page.NextCursor = &next
	}
	if page.Streams == nil {
		page.Streams = []domain.Stream{}
	}
	return page, nil
}
