package store

import (
	"context"
	"time"
)

// PresenceStore keeps derived presence data in Redis. The database stays the
// source of truth; everything here can be rebuilt by the sweeper.
type PresenceStore interface {
	// SetViewerCount records the live viewer count of a live stream on the leaderboard.
	SetViewerCount(ctx context.Context, streamID string, live int64) error

	// ObservePeak raises the cached peak of a stream to live if higher and
	// returns the resulting peak.
	ObservePeak(ctx context.Context, streamID string, live int64) (int64, error)

	// RemoveStream drops an ended stream from the leaderboard.
	RemoveStream(ctx context.Context, streamID string) error

	// TopLive returns up to limit live stream IDs, most viewers first.
	TopLive(ctx context.Context, limit int) ([]string, error)

	// ReplaceLeaderboard swaps the leaderboard for the given counts.
	ReplaceLeaderboard(ctx context.Context, counts map[string]int64) error
}

// RateLimiter gates repeated actions of one user in one room.
type RateLimiter interface {
	// Allow reports whether userID may act in roomID now, and if so blocks
	// further actions for interval.
	Allow(ctx context.Context, roomID, userID string, interval time.Duration) (bool, error)
}
