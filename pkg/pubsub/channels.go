package pubsub

import (
	"fmt"
	"strings"
)

// Channel naming for livestream events: live:stream:{streamID}:{kind}.
const (
	channelFormat = "live:stream:%s:%s"
	channelPrefix = "live"
)

// Channel kinds. Each kind maps to one Kafka topic.
const (
	KindPresence  = "presence"
	KindChat      = "chat"
	KindLifecycle = "lifecycle"
)

// Kinds lists every channel kind.
var Kinds = []string{KindPresence, KindChat, KindLifecycle}

// Event types.
const (
	EventViewerCount        = "viewer_count"
	EventChatMessage        = "chat_message"
	EventChatMessageDeleted = "chat_message_deleted"
	EventChatRoomUpdated    = "chat_room_updated"
	EventStreamStarted      = "stream_started"
	EventStreamEnded        = "stream_ended"
)

// StreamChannel returns the channel for one stream and kind.
func StreamChannel(streamID, kind string) string {
	return fmt.Sprintf(channelFormat, streamID, kind)
}

// KindPattern returns the pattern matching every stream's channel of a kind.
func KindPattern(kind string) string {
	return fmt.Sprintf(channelFormat, "*", kind)
}

// ParseChannel splits a channel into stream id and kind.
func ParseChannel(channel string) (streamID, kind string, err error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[0] != channelPrefix || parts[1] != "stream" || parts[2] == "" {
		return "", "", fmt.Errorf("invalid channel format: %s", channel)
	}
	return parts[2], parts[3], nil
}

// Event payloads.

// ViewerCountPayload is published after every viewer-count recomputation.
type ViewerCountPayload struct {
	StreamID        string `json:"stream_id"`
	ViewerCount     int64  `json:"viewer_count"`
	PeakViewerCount int64  `json:"peak_viewer_count"`
}

// ChatMessagePayload is published when a message is sent.
type ChatMessagePayload struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
	Type      string `json:"type"`
	CreatedAt int64  `json:"created_at"`
}

// ChatMessageDeletedPayload is published when a message is tombstoned.
type ChatMessageDeletedPayload struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
	DeletedBy string `json:"deleted_by"`
}

// ChatRoomUpdatedPayload is published when a room policy changes.
type ChatRoomUpdatedPayload struct {
	RoomID          string `json:"room_id"`
	IsEnabled       bool   `json:"is_enabled"`
	SlowMode        *int   `json:"slow_mode,omitempty"`
	FollowersOnly   *bool  `json:"followers_only,omitempty"`
	SubscribersOnly *bool  `json:"subscribers_only,omitempty"`
}

// StreamLifecyclePayload is published on start and end.
type StreamLifecyclePayload struct {
	StreamID        string `json:"stream_id"`
	OwnerID         string `json:"owner_id"`
	Status          string `json:"status"`
	TransportHandle string `json:"transport_handle,omitempty"`
	PeakViewerCount int64  `json:"peak_viewer_count"`
}
