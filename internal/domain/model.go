package domain

import "time"

// StreamModel is the GORM model for streams table.
type StreamModel struct {
	ID              string `gorm:"type:varchar(36);primaryKey"`
	UserID          string `gorm:"type:varchar(36);index;not null"`
	Title           string `gorm:"type:varchar(200);not null"`
	Description     string `gorm:"type:text"`
	Category        string `gorm:"type:varchar(100)"`
	ThumbnailURL    string `gorm:"type:varchar(500)"`
	Status          string `gorm:"type:varchar(20);index;not null"`
	TransportHandle string `gorm:"type:varchar(255);index"`
	ViewerCount     int64  `gorm:"not null;default:0"`
	PeakViewerCount int64  `gorm:"not null;default:0"`
	StartedAt       *time.Time
	EndedAt         *time.Time
	CreatedAt       time.Time `gorm:"index"`
	UpdatedAt       time.Time
}

// TableName specifies the table name for StreamModel.
func (StreamModel) TableName() string {
	return "streams"
}

// ToDomain converts StreamModel to domain Stream.
func (m *StreamModel) ToDomain() *Stream {
	return &Stream{
		ID:              m.ID,
		UserID:          m.UserID,
		Title:           m.Title,
		Description:     m.Description,
		Category:        m.Category,
		ThumbnailURL:    m.ThumbnailURL,
		Status:          StreamStatus(m.Status),
		TransportHandle: m.TransportHandle,
		ViewerCount:     m.ViewerCount,
		PeakViewerCount: m.PeakViewerCount,
		StartedAt:       m.StartedAt,
		EndedAt:         m.EndedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// StreamToModel converts domain Stream to StreamModel.
func StreamToModel(s *Stream) *StreamModel {
	return &StreamModel{
		ID:              s.ID,
		UserID:          s.UserID,
		Title:           s.Title,
		Description:     s.Description,
		Category:        s.Category,
		ThumbnailURL:    s.ThumbnailURL,
		Status:          string(s.Status),
		TransportHandle: s.TransportHandle,
		ViewerCount:     s.ViewerCount,
		PeakViewerCount: s.PeakViewerCount,
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// ChatRoomModel is the GORM model for chat_rooms table.
// IsEnabled carries no default tag: GORM would replace an explicit false.
type ChatRoomModel struct {
	ID              string `gorm:"type:varchar(36);primaryKey"`
	StreamID        string `gorm:"type:varchar(36);uniqueIndex;not null"`
	IsEnabled       bool   `gorm:"not null"`
	SlowMode        *int
	FollowersOnly   *bool
	SubscribersOnly *bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName specifies the table name for ChatRoomModel.
func (ChatRoomModel) TableName() string {
	return "chat_rooms"
}

// ToDomain converts ChatRoomModel to domain ChatRoom.
func (m *ChatRoomModel) ToDomain() *ChatRoom {
	return &ChatRoom{
		ID:              m.ID,
		StreamID:        m.StreamID,
		IsEnabled:       m.IsEnabled,
		SlowMode:        m.SlowMode,
		FollowersOnly:   m.FollowersOnly,
		SubscribersOnly: m.SubscribersOnly,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// ChatRoomToModel converts domain ChatRoom to ChatRoomModel.
func ChatRoomToModel(r *ChatRoom) *ChatRoomModel {
	return &ChatRoomModel{
		ID:              r.ID,
		StreamID:        r.StreamID,
		IsEnabled:       r.IsEnabled,
		SlowMode:        r.SlowMode,
		FollowersOnly:   r.FollowersOnly,
		SubscribersOnly: r.SubscribersOnly,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// ChatMessageModel is the GORM model for chat_messages table.
type ChatMessageModel struct {
	ID         string    `gorm:"type:varchar(26);primaryKey"`
	ChatRoomID string    `gorm:"type:varchar(36);not null;index:idx_chat_messages_room_created,priority:1"`
	CreatedAt  time.Time `gorm:"not null;index:idx_chat_messages_room_created,priority:2"`
	UserID     string    `gorm:"type:varchar(36);index;not null"`
	Content    string    `gorm:"type:text;not null"`
	Type       string    `gorm:"type:varchar(16);not null"`
	IsDeleted  bool      `gorm:"not null"`
	DeletedBy  *string   `gorm:"type:varchar(36)"`
}

// TableName specifies the table name for ChatMessageModel.
func (ChatMessageModel) TableName() string {
	return "chat_messages"
}

// ToDomain converts ChatMessageModel to domain ChatMessage.
func (m *ChatMessageModel) ToDomain() *ChatMessage {
	return &ChatMessage{
		ID:         m.ID,
		ChatRoomID: m.ChatRoomID,
		UserID:     m.UserID,
		Content:    m.Content,
		Type:       MessageType(m.Type),
		IsDeleted:  m.IsDeleted,
		DeletedBy:  m.DeletedBy,
		CreatedAt:  m.CreatedAt,
	}
}

// ChatMessageToModel converts domain ChatMessage to ChatMessageModel.
func ChatMessageToModel(m *ChatMessage) *ChatMessageModel {
	return &ChatMessageModel{
		ID:         m.ID,
		ChatRoomID: m.ChatRoomID,
		UserID:     m.UserID,
		Content:    m.Content,
		Type:       string(m.Type),
		IsDeleted:  m.IsDeleted,
		DeletedBy:  m.DeletedBy,
		CreatedAt:  m.CreatedAt,
	}
}

// ViewerSessionModel is the GORM model for viewer_sessions table.
type ViewerSessionModel struct {
	ID           string    `gorm:"type:varchar(36);primaryKey"`
	StreamID     string    `gorm:"type:varchar(36);not null;index:idx_viewer_sessions_stream_active,priority:1"`
	LastActiveAt time.Time `gorm:"not null;index:idx_viewer_sessions_stream_active,priority:2;index"`
	UserID       *string   `gorm:"type:varchar(36);index"`
	SessionID    string    `gorm:"type:varchar(128);uniqueIndex;not null"`
	JoinedAt     time.Time `gorm:"not null"`
}

// TableName specifies the table name for ViewerSessionModel.
func (ViewerSessionModel) TableName() string {
	return "viewer_sessions"
}

// ToDomain converts ViewerSessionModel to domain ViewerSession.
func (m *ViewerSessionModel) ToDomain() *ViewerSession {
	return &ViewerSession{
		ID:           m.ID,
		StreamID:     m.StreamID,
		UserID:       m.UserID,
		SessionID:    m.SessionID,
		JoinedAt:     m.JoinedAt,
		LastActiveAt: m.LastActiveAt,
	}
}

// UserModel is the GORM model for users table.
type UserModel struct {
	ID          string `gorm:"type:varchar(36);primaryKey"`
	Username    string `gorm:"type:varchar(50);uniqueIndex;not null"`
	DisplayName string `gorm:"type:varchar(100)"`
	AvatarURL   string `gorm:"type:varchar(500)"`
	IsLive      bool   `gorm:"not null;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	return &User{
		ID:          m.ID,
		Username:    m.Username,
		DisplayName: m.DisplayName,
		AvatarURL:   m.AvatarURL,
		IsLive:      m.IsLive,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// FollowModel is the GORM model for follows table.
type FollowModel struct {
	ID          string    `gorm:"type:varchar(36);primaryKey"`
	FollowerID  string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_follows_pair,priority:1"`
	FollowingID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_follows_pair,priority:2;index"`
	CreatedAt   time.Time `gorm:"index"`
}

// TableName specifies the table name for FollowModel.
func (FollowModel) TableName() string {
	return "follows"
}

// ToDomain converts FollowModel to domain Follow.
func (m *FollowModel) ToDomain() *Follow {
	return &Follow{
		ID:          m.ID,
		FollowerID:  m.FollowerID,
		FollowingID: m.FollowingID,
		CreatedAt:   m.CreatedAt,
	}
}

// Models lists every GORM model for auto-migration.
func Models() []interface{} {
	return []interface{}{
		&StreamModel{},
		&ChatRoomModel{},
		&ChatMessageModel{},
		&ViewerSessionModel{},
		&UserModel{},
		&FollowModel{},
	}
}
