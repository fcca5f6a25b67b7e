package service

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/idgen"
	"github.com/weiawesome/wes-io-live/internal/repository"
	"github.com/weiawesome/wes-io-live/pkg/log"
)

// userServiceImpl implements UserService.
type userServiceImpl struct {
	users   repository.UserRepository
	follows repository.FollowRepository
	ids     idgen.Generator
	now     func() time.Time
}

// NewUserService creates a new user service.
func NewUserService(users repository.UserRepository, follows repository.FollowRepository, ids idgen.Generator, now func() time.Time) UserService {
	if now == nil {
		now = time.Now
	}
	return &userServiceImpl{users: users, follows: follows, ids: ids, now: now}
}

// UpsertProfile syncs the caller's profile from the identity provider.
func (s *userServiceImpl) UpsertProfile(ctx context.Context, callerID string, req *domain.UpsertProfileRequest) (*domain.User, error) {
	if callerID == "" {
		return nil, domain.ErrCallerRequired
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}
	now := s.now().UTC()
	user, err := s.users.Upsert(ctx, &domain.User{
		ID:          callerID,
		Username:    req.Username,
		DisplayName: displayName,
		AvatarURL:   req.AvatarURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, domain.ErrAlreadyExists
		}
		return nil, err
	}
	return user, nil
}

// GetProfile returns a user's public profile.
func (s *userServiceImpl) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user.Profile(), nil
}

// Follow makes the caller follow targetID. Following twice is a no-op.
func (s *userServiceImpl) Follow(ctx context.Context, callerID, targetID string) (*domain.FollowStatus, error) {
	if err := s.checkPair(ctx, callerID, targetID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	created, err := s.follows.Follow(ctx, &domain.Follow{
		ID:          s.ids.NewID(now),
		FollowerID:  callerID,
		FollowingID: targetID,
		CreatedAt:   now,
	})
	if err != nil {
		return nil, err
	}
	if created {
		l := log.Ctx(ctx)
		l.Info().Str(log.FieldUserID, callerID).Str("following_id", targetID).Msg("user followed")
	}
	return s.status(ctx, callerID, targetID)
}

// Unfollow removes the caller's follow of targetID, if any.
func (s *userServiceImpl) Unfollow(ctx context.Context, callerID, targetID string) (*domain.FollowStatus, error) {
	if err := s.checkPair(ctx, callerID, targetID); err != nil {
		return nil, err
	}
	if _, err := s.follows.Unfollow(ctx, callerID, targetID); err != nil {
		return nil, err
	}
	return s.status(ctx, callerID, targetID)
}

// IsFollowing reports the follow relation and targetID's counts.
func (s *userServiceImpl) IsFollowing(ctx context.Context, callerID, targetID string) (*domain.FollowStatus, error) {
	if callerID == "" {
		return nil, domain.ErrCallerRequired
	}
	return s.status(ctx, callerID, targetID)
}

func (s *userServiceImpl) checkPair(ctx context.Context, callerID, targetID string) error {
	if callerID == "" {
		return domain.ErrCallerRequired
	}
	if callerID == targetID {
		return domain.ErrSelfFollow
	}
	if _, err := s.users.GetByID(ctx, targetID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return domain.ErrUserNotFound
		}
		return err
	}
	return nil
}

func (s *userServiceImpl) status(ctx context.Context, callerID, targetID string) (*domain.FollowStatus, error) {
	following := false
	if callerID != targetID {
		var err error
		following, err = s.follows.IsFollowing(ctx, callerID, targetID)
		if err != nil {
			return nil, err
		}
	}
	followers, err := s.follows.CountFollowers(ctx, targetID)
	if err != nil {
		return nil, err
	}
	followingCount, err := s.follows.CountFollowing(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return &domain.FollowStatus{
		UserID:         targetID,
		IsFollowing:    following,
		FollowerCount:  followers,
		FollowingCount: followingCount,
	}, nil
}
