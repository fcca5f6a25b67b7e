package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-live/internal/audit"
	"github.com/weiawesome/wes-io-live/internal/config"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/metrics"
	"github.com/weiawesome/wes-io-live/internal/repository"
	"github.com/weiawesome/wes-io-live/internal/store"
	pkglog "github.com/weiawesome/wes-io-live/pkg/log"
)

const systemActor = "system"

// SweepResult summarises one sweep.
type SweepResult struct {
	Deleted    int64
	Recomputed int
	LiveTotal  int64
}

// Sweeper deletes long idle viewer sessions and rebuilds cached viewer
// counts and the live leaderboard from the database.
type Sweeper struct {
	sessions repository.SessionRepository
	streams  repository.StreamRepository
	store    store.PresenceStore
	cfg      config.PresenceConfig
	now      func() time.Time
	quit     chan struct{}
	doneCh   chan struct{}
}

// New creates a new Sweeper. presenceStore may be nil.
func New(
	sessions repository.SessionRepository,
	streams repository.StreamRepository,
	presenceStore store.PresenceStore,
	cfg config.PresenceConfig,
	now func() time.Time,
) *Sweeper {
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = domain.DefaultActiveWindow
	}
	if cfg.StaleGrace < 0 {
		cfg.StaleGrace = 0
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		sessions: sessions,
		streams:  streams,
		store:    presenceStore,
		cfg:      cfg,
		now:      now,
		quit:     make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the sweeper in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop signals the sweeper to stop and returns immediately.
// Call Done() to wait for it to exit.
func (s *Sweeper) Stop() {
	close(s.quit)
}

// Done returns a channel that is closed when the sweeper has fully stopped.
func (s *Sweeper) Done() <-chan struct{} {
	return s.doneCh
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.doneCh)

	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				l := pkglog.L()
				l.Error().Err(err).Msg("sweeper: sweep failed")
			}
		}
	}
}

// RunOnce performs a single sweep. Sessions idle for longer than the
// active window plus the grace period are deleted, then every live stream
// is recomputed and the leaderboard is replaced with the fresh counts.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	l := pkglog.L()
	now := s.now().UTC()
	cutoff := now.Add(-(s.cfg.ActiveWindow + s.cfg.StaleGrace))

	deleted, affected, err := s.sessions.DeleteStale(ctx, cutoff)
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("delete stale sessions: %w", err)
	}
	metrics.SweptSessions.Add(float64(deleted))

	liveIDs, err := s.streams.ListLiveIDs(ctx)
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list live streams: %w", err)
	}

	result := &SweepResult{Deleted: deleted}
	counts := make(map[string]int64, len(liveIDs))
	for _, id := range liveIDs {
		count, err := s.sessions.Recompute(ctx, id, now, s.cfg.ActiveWindow)
		if err != nil {
			l.Error().Err(err).Str(pkglog.FieldStreamID, id).Msg("sweeper: failed to recompute viewer count")
			continue
		}
		if count.Status != domain.StreamStatusLive {
			continue
		}
		counts[id] = count.Live
		result.Recomputed++
		result.LiveTotal += count.Live
		metrics.LiveViewers.WithLabelValues(id).Set(float64(count.Live))
	}

	// Affected streams that are no longer live only need their cached count
	// brought back in line.
	for _, id := range affected {
		if _, ok := counts[id]; ok {
			continue
		}
		if _, err := s.sessions.Recompute(ctx, id, now, s.cfg.ActiveWindow); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldStreamID, id).Msg("sweeper: failed to recompute swept stream")
		}
	}

	if s.store != nil {
		if err := s.store.ReplaceLeaderboard(ctx, counts); err != nil {
			l.Warn().Err(err).Msg("sweeper: failed to rebuild live leaderboard")
		}
	}

	metrics.SweepRuns.WithLabelValues("ok").Inc()
	if deleted > 0 {
		audit.LogWithDetail(ctx, audit.ActionPresenceSweep, systemActor, "",
			fmt.Sprintf("deleted=%d streams=%d", deleted, len(affected)), "stale viewer sessions swept")
	}
	l.Info().
		Int64("deleted", deleted).
		Int("recomputed", result.Recomputed).
		Int64("live_viewers", result.LiveTotal).
		Msg("sweeper: sweep complete")
	return result, nil
}
