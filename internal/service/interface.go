package service

import (
	"context"

	"github.com/weiawesome/wes-io-live/internal/domain"
)

// PresenceService tracks viewer sessions and aggregates viewer counts.
type PresenceService interface {
	Join(ctx context.Context, streamID, sessionID, viewerUserID string) (*domain.SessionHandle, error)
	Heartbeat(ctx context.Context, sessionID string) (bool, error)
	Leave(ctx context.Context, sessionID string) (bool, error)
	Recompute(ctx context.Context, streamID string) (*domain.ViewerCount, error)
	GetViewerCount(ctx context.Context, streamID string) (int64, error)
}

// ChatRoomService manages the chat room of each stream.
type ChatRoomService interface {
	CreateRoom(ctx context.Context, streamID, callerID string, policy domain.RoomPolicy) (*domain.ChatRoom, error)
	EnsureRoomForLiveStream(ctx context.Context, streamID string) (*domain.ChatRoom, error)
	UpdatePolicy(ctx context.Context, roomID, callerID string, patch domain.PolicyPatch) (*domain.ChatRoom, error)
	// GetByStreamID returns nil without error when the stream has no room.
	GetByStreamID(ctx context.Context, streamID string) (*domain.ChatRoom, error)
	GetByID(ctx context.Context, roomID string) (*domain.ChatRoom, error)
	// GetByIDFresh reads the room from the database, bypassing the cache.
	GetByIDFresh(ctx context.Context, roomID string) (*domain.ChatRoom, error)
	Moderator
}

// Moderator decides who may moderate a room.
type Moderator interface {
	CanModerate(ctx context.Context, room *domain.ChatRoom, userID string) (bool, error)
}

// MessageService stores and renders chat messages.
type MessageService interface {
	Send(ctx context.Context, roomID, callerID, content string, msgType domain.MessageType) (*domain.ChatMessage, error)
	// List returns the newest limit messages in chronological order.
	List(ctx context.Context, roomID string, limit int) ([]domain.MessageView, error)
	Delete(ctx context.Context, messageID, callerID string) (bool, error)
	// GetMessage returns the stored message including tombstoned content.
	GetMessage(ctx context.Context, messageID string) (*domain.ChatMessage, error)
	// Transcript renders every message of a room in chronological order.
	Transcript(ctx context.Context, roomID string) ([]domain.MessageView, error)
}

// LifecycleService moves streams through offline -> live -> ended.
type LifecycleService interface {
	Start(ctx context.Context, streamID, callerID, transportHandle string) (*domain.Stream, error)
	End(ctx context.Context, streamID, callerID string) (*domain.Stream, error)
}

// StreamService manages stream metadata.
type StreamService interface {
	Create(ctx context.Context, callerID string, req *domain.CreateStreamRequest) (*domain.Stream, error)
	Update(ctx context.Context, streamID, callerID string, req *domain.UpdateStreamRequest) (*domain.Stream, error)
	GetByID(ctx context.Context, streamID string) (*domain.StreamWithStreamer, error)
	GetByTransportHandle(ctx context.Context, handle string) (*domain.Stream, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Stream, error)
	ListLive(ctx context.Context, limit int) ([]domain.StreamWithStreamer, error)
}

// UserService manages profiles and the follow graph.
type UserService interface {
	UpsertProfile(ctx context.Context, callerID string, req *domain.UpsertProfileRequest) (*domain.User, error)
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	Follow(ctx context.Context, callerID, targetID string) (*domain.FollowStatus, error)
	Unfollow(ctx context.Context, callerID, targetID string) (*domain.FollowStatus, error)
	IsFollowing(ctx context.Context, callerID, targetID string) (*domain.FollowStatus, error)
}

// DashboardService summarises a broadcaster's own channel.
type DashboardService interface {
	GetStats(ctx context.Context, callerID string) (*domain.DashboardStats, error)
	GetMyStreams(ctx context.Context, callerID string, limit int, cursor string) (*domain.StreamPage, error)
}
