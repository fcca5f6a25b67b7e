package repository

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-io-live/internal/domain"
)

var (
	ErrStreamNotFound  = errors.New("stream not found")
	ErrStreamNotLive   = errors.New("stream is not live")
	ErrStatusConflict  = errors.New("stream status changed concurrently")
	ErrRoomNotFound    = errors.New("chat room not found")
	ErrRoomExists      = errors.New("chat room already exists")
	ErrMessageNotFound = errors.New("message not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrDuplicateUser   = errors.New("username already taken")
)

// StreamRepository persists streams and their lifecycle transitions.
type StreamRepository interface {
	Create(ctx context.Context, stream *domain.Stream) error
	GetByID(ctx context.Context, id string) (*domain.Stream, error)
	GetByTransportHandle(ctx context.Context, handle string) (*domain.Stream, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Stream, error)
	UpdateMetadata(ctx context.Context, id string, req *domain.UpdateStreamRequest, now time.Time) (*domain.Stream, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Stream, error)
	// ListByUserPage returns up to limit+1 streams older than the cursor stream.
	ListByUserPage(ctx context.Context, userID, cursor string, limit int) ([]domain.Stream, error)
	ListLive(ctx context.Context, limit int) ([]domain.Stream, error)
	ListLiveIDs(ctx context.Context) ([]string, error)
	// MarkLive moves an offline stream to live and flags the owner as live.
	// ErrStatusConflict means the stream was not offline.
	MarkLive(ctx context.Context, id, ownerID, transportHandle string, now time.Time) (*domain.Stream, error)
	// MarkEnded moves a live stream to ended and clears the owner's live flag.
	// ErrStatusConflict means the stream was not live.
	MarkEnded(ctx context.Context, id, ownerID string, now time.Time) (*domain.Stream, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
	SumPeakViewersByUser(ctx context.Context, userID string) (int64, error)
}

// SessionRepository persists viewer sessions. Every write that changes the
// set of sessions of a stream recomputes that stream's viewer counts in the
// same transaction.
type SessionRepository interface {
	// Join inserts the session or, when its session id exists, bumps it.
	// It returns the stored session, whether it already existed, and the
	// recomputed counts.
	Join(ctx context.Context, session *domain.ViewerSession, window time.Duration) (*domain.ViewerSession, bool, *domain.ViewerCount, error)
	Heartbeat(ctx context.Context, sessionID string, now time.Time) (bool, error)
	// Leave deletes the session. The returned count is nil when nothing was deleted.
	Leave(ctx context.Context, sessionID string, now time.Time, window time.Duration) (bool, *domain.ViewerCount, error)
	Recompute(ctx context.Context, streamID string, now time.Time, window time.Duration) (*domain.ViewerCount, error)
	CountActive(ctx context.Context, streamID string, since time.Time) (int64, error)
	GetBySessionID(ctx context.Context, sessionID string) (*domain.ViewerSession, error)
	// DeleteStale removes sessions idle since before the cutoff and returns
	// the affected stream ids.
	DeleteStale(ctx context.Context, before time.Time) (int64, []string, error)
}

// ChatRoomRepository persists chat rooms.
type ChatRoomRepository interface {
	Create(ctx context.Context, room *domain.ChatRoom) error
	GetByID(ctx context.Context, id string) (*domain.ChatRoom, error)
	GetByStreamID(ctx context.Context, streamID string) (*domain.ChatRoom, error)
	UpdatePolicy(ctx context.Context, id string, patch domain.PolicyPatch, now time.Time) (*domain.ChatRoom, error)
}

// MessageRepository persists chat messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.ChatMessage) error
	GetByID(ctx context.Context, id string) (*domain.ChatMessage, error)
	// ListRecent returns the newest limit messages, newest first.
	ListRecent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error)
	// ListAfter returns up to limit messages after afterID, oldest first.
	ListAfter(ctx context.Context, roomID, afterID string, limit int) ([]domain.ChatMessage, error)
	// SoftDelete tombstones the message. It reports false when the message
	// was already deleted.
	SoftDelete(ctx context.Context, id, deletedBy string) (bool, error)
}

// UserRepository persists user profiles.
type UserRepository interface {
	Upsert(ctx context.Context, user *domain.User) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error)
}

// FollowRepository persists the follow graph.
type FollowRepository interface {
	Follow(ctx context.Context, follow *domain.Follow) (bool, error)
	Unfollow(ctx context.Context, followerID, followingID string) (bool, error)
	IsFollowing(ctx context.Context, followerID, followingID string) (bool, error)
	CountFollowers(ctx context.Context, userID string) (int64, error)
	CountFollowing(ctx context.Context, userID string) (int64, error)
}
