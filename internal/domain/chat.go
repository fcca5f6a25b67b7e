package domain

import "time"

// DeletedMessagePlaceholder replaces the content of tombstoned messages on read.
const DeletedMessagePlaceholder = "[Message deleted]"

// MessageType classifies chat messages.
type MessageType string

const (
	MessageTypeMessage MessageType = "message"
	MessageTypeSystem  MessageType = "system"
	MessageTypeEmote   MessageType = "emote"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeMessage, MessageTypeSystem, MessageTypeEmote:
		return true
	}
	return false
}

// ChatRoom is the single chat room of a stream.
type ChatRoom struct {
	ID              string    `json:"id"`
	StreamID        string    `json:"stream_id"`
	IsEnabled       bool      `json:"is_enabled"`
	SlowMode        *int      `json:"slow_mode,omitempty"`
	FollowersOnly   *bool     `json:"followers_only,omitempty"`
	SubscribersOnly *bool     `json:"subscribers_only,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SlowModeInterval returns the slow mode interval, zero when off.
func (r *ChatRoom) SlowModeInterval() time.Duration {
	if r.SlowMode == nil || *r.SlowMode <= 0 {
		return 0
	}
	return time.Duration(*r.SlowMode) * time.Second
}

// IsFollowersOnly reports whether only followers may chat.
func (r *ChatRoom) IsFollowersOnly() bool {
	return r.FollowersOnly != nil && *r.FollowersOnly
}

// RoomPolicy holds the policy fields set when a room is created.
type RoomPolicy struct {
	SlowMode        *int  `json:"slow_mode" binding:"omitempty,min=0,max=86400"`
	FollowersOnly   *bool `json:"followers_only"`
	SubscribersOnly *bool `json:"subscribers_only"`
}

// PolicyPatch is a partial update of a room's state and policy.
type PolicyPatch struct {
	IsEnabled       *bool `json:"is_enabled"`
	SlowMode        *int  `json:"slow_mode" binding:"omitempty,min=0,max=86400"`
	FollowersOnly   *bool `json:"followers_only"`
	SubscribersOnly *bool `json:"subscribers_only"`
}

// IsEmpty reports whether the patch changes nothing.
func (p PolicyPatch) IsEmpty() bool {
	return p.IsEnabled == nil && p.SlowMode == nil && p.FollowersOnly == nil && p.SubscribersOnly == nil
}

// ChatMessage is a stored message. Content never changes after insert;
// deletion only sets IsDeleted and DeletedBy.
type ChatMessage struct {
	ID         string      `json:"id"`
	ChatRoomID string      `json:"chat_room_id"`
	UserID     string      `json:"user_id"`
	Content    string      `json:"content"`
	Type       MessageType `json:"type"`
	IsDeleted  bool        `json:"is_deleted"`
	DeletedBy  *string     `json:"deleted_by,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// MessageView is how a message is rendered to chat clients.
type MessageView struct {
	ID         string       `json:"id"`
	ChatRoomID string       `json:"chat_room_id"`
	UserID     string       `json:"user_id"`
	Content    string       `json:"content"`
	Type       MessageType  `json:"type"`
	IsDeleted  bool         `json:"is_deleted"`
	CreatedAt  time.Time    `json:"created_at"`
	User       *UserProfile `json:"user"`
}

// ToView renders the message, masking tombstoned content and author.
func (m *ChatMessage) ToView(author *UserProfile) MessageView {
	v := MessageView{
		ID:         m.ID,
		ChatRoomID: m.ChatRoomID,
		UserID:     m.UserID,
		Content:    m.Content,
		Type:       m.Type,
		IsDeleted:  m.IsDeleted,
		CreatedAt:  m.CreatedAt,
		User:       author,
	}
	if m.IsDeleted {
		v.Content = DeletedMessagePlaceholder
		v.User = nil
	}
	return v
}

// SendMessageRequest represents a request to send a chat message.
type SendMessageRequest struct {
	Content string      `json:"content" binding:"required"`
	Type    MessageType `json:"type"`
}

// ListMessagesRequest represents query parameters for listing messages.
type ListMessagesRequest struct {
	Limit int `form:"limit"`
}
