package domain

import "time"

// DefaultActiveWindow is how long a session counts as watching after its
// last join or heartbeat.
const DefaultActiveWindow = 5 * time.Minute

// ViewerSession is one client session watching a stream. Sessions are keyed
// by the client chosen SessionID; a user may hold several at once.
type ViewerSession struct {
	ID           string    `json:"id"`
	StreamID     string    `json:"stream_id"`
	UserID       *string   `json:"user_id,omitempty"`
	SessionID    string    `json:"session_id"`
	JoinedAt     time.Time `json:"joined_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// IsActive reports whether the session is inside the active window at now.
func (s *ViewerSession) IsActive(now time.Time, window time.Duration) bool {
	return now.Sub(s.LastActiveAt) < window
}

// SessionHandle is returned to a viewer on join.
type SessionHandle struct {
	ID           string    `json:"id"`
	StreamID     string    `json:"stream_id"`
	SessionID    string    `json:"session_id"`
	JoinedAt     time.Time `json:"joined_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	ViewerCount  int64     `json:"viewer_count"`
}

// ViewerCount is the result of a recomputation.
type ViewerCount struct {
	StreamID string `json:"stream_id"`
	Live     int64  `json:"viewer_count"`
	Peak     int64  `json:"peak_viewer_count"`
	// Status is the stream's status when the count was taken.
	Status StreamStatus `json:"status"`
}

// JoinStreamRequest represents a request to join a stream.
type JoinStreamRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}
