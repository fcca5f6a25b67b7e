package domain

import "time"

// StreamStatus is the lifecycle state of a stream.
type StreamStatus string

const (
	StreamStatusOffline StreamStatus = "offline"
	StreamStatusLive    StreamStatus = "live"
	StreamStatusEnded   StreamStatus = "ended"
)

// Stream is one broadcast. A stream goes offline -> live -> ended once;
// going live again needs a new stream.
type Stream struct {
	ID              string       `json:"id"`
	UserID          string       `json:"user_id"`
	Title           string       `json:"title"`
	Description     string       `json:"description,omitempty"`
	Category        string       `json:"category,omitempty"`
	ThumbnailURL    string       `json:"thumbnail_url,omitempty"`
	Status          StreamStatus `json:"status"`
	TransportHandle string       `json:"transport_handle,omitempty"`
	ViewerCount     int64        `json:"viewer_count"`
	PeakViewerCount int64        `json:"peak_viewer_count"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	EndedAt         *time.Time   `json:"ended_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// IsLive reports whether the stream is currently live.
func (s *Stream) IsLive() bool {
	return s.Status == StreamStatusLive
}

// StreamWithStreamer is a stream together with its owner's profile.
type StreamWithStreamer struct {
	*Stream
	Streamer *UserProfile `json:"streamer"`
}

// CreateStreamRequest represents a request to create a stream.
type CreateStreamRequest struct {
	Title        string `json:"title" binding:"required,min=1,max=200"`
	Description  string `json:"description" binding:"max=2000"`
	Category     string `json:"category" binding:"max=100"`
	ThumbnailURL string `json:"thumbnail_url" binding:"omitempty,url,max=500"`
}

// UpdateStreamRequest is a partial update of display metadata.
type UpdateStreamRequest struct {
	Title        *string `json:"title" binding:"omitempty,min=1,max=200"`
	Description  *string `json:"description" binding:"omitempty,max=2000"`
	Category     *string `json:"category" binding:"omitempty,max=100"`
	ThumbnailURL *string `json:"thumbnail_url" binding:"omitempty,max=500"`
}

// StartStreamRequest carries the opaque media transport handle.
type StartStreamRequest struct {
	TransportHandle string `json:"transport_handle" binding:"max=255"`
}

// ListLiveRequest represents query parameters for listing live streams.
type ListLiveRequest struct {
	Limit int `form:"limit"`
}

// StreamPage is one page of a cursor-paginated stream listing.
type StreamPage struct {
	Streams    []Stream `json:"streams"`
	NextCursor *string  `json:"next_cursor"`
}

// DashboardStats summarises a broadcaster's channel.
type DashboardStats struct {
	FollowerCount  int64 `json:"follower_count"`
	FollowingCount int64 `json:"following_count"`
	StreamCount    int64 `json:"stream_count"`
	TotalViews     int64 `json:"total_views"`
}
