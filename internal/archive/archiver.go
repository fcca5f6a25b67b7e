package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/weiawesome/wes-io-live/internal/config"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/metrics"
	pkglog "github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
	"github.com/weiawesome/wes-io-live/pkg/storage"
)

const contentTypeJSON = "application/json"

// RoomFinder resolves the chat room of a stream.
type RoomFinder interface {
	GetByStreamID(ctx context.Context, streamID string) (*domain.ChatRoom, error)
}

// TranscriptSource renders the full history of a room.
type TranscriptSource interface {
	Transcript(ctx context.Context, roomID string) ([]domain.MessageView, error)
}

// Transcript is the archived chat history of an ended stream.
type Transcript struct {
	StreamID        string               `json:"stream_id"`
	RoomID          string               `json:"room_id"`
	OwnerID         string               `json:"owner_id"`
	PeakViewerCount int64                `json:"peak_viewer_count"`
	ArchivedAt      time.Time            `json:"archived_at"`
	Messages        []domain.MessageView `json:"messages"`
}

// Archiver writes the chat transcript of every ended stream to object
// storage.
type Archiver struct {
	sub      pubsub.Subscriber
	rooms    RoomFinder
	messages TranscriptSource
	storage  storage.Storage
	cfg      config.ArchiveConfig
	now      func() time.Time
}

// New creates a new Archiver.
func New(
	sub pubsub.Subscriber,
	rooms RoomFinder,
	messages TranscriptSource,
	store storage.Storage,
	cfg config.ArchiveConfig,
	now func() time.Time,
) *Archiver {
	if cfg.Prefix == "" {
		cfg.Prefix = "transcripts"
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = 15 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Archiver{
		sub:      sub,
		rooms:    rooms,
		messages: messages,
		storage:  store,
		cfg:      cfg,
		now:      now,
	}
}

// Key returns the object key of a stream's transcript.
func (a *Archiver) Key(streamID string) string {
	return path.Join(a.cfg.Prefix, streamID+".json")
}

// Run consumes lifecycle events until ctx is cancelled or the subscription
// closes.
func (a *Archiver) Run(ctx context.Context) error {
	l := pkglog.L()

	pattern := pubsub.KindPattern(pubsub.KindLifecycle)
	events, err := a.sub.SubscribePattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("subscribe to lifecycle events: %w", err)
	}
	defer a.sub.Unsubscribe(context.Background(), pattern)

	l.Info().Str("pattern", pattern).Msg("transcript archiver started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			a.handle(ctx, event)
		}
	}
}

func (a *Archiver) handle(ctx context.Context, event *pubsub.Event) {
	if event == nil || event.Type != pubsub.EventStreamEnded {
		return
	}
	l := pkglog.L()

	var payload pubsub.StreamLifecyclePayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		l.Warn().Err(err).Str(pkglog.FieldStreamID, event.StreamID).Msg("archiver: invalid stream_ended payload")
		return
	}
	if payload.StreamID == "" {
		payload.StreamID = event.StreamID
	}

	ctx = pkglog.WithStream(ctx, payload.StreamID)
	if _, err := a.Archive(ctx, payload); err != nil {
		l.Error().Err(err).Str(pkglog.FieldStreamID, payload.StreamID).Msg("archiver: failed to archive transcript")
	}
}

// Archive writes the transcript of an ended stream and returns its key.
// Streams without a chat room are skipped with an empty key.
func (a *Archiver) Archive(ctx context.Context, ended pubsub.StreamLifecyclePayload) (string, error) {
	l := pkglog.Ctx(ctx)

	room, err := a.rooms.GetByStreamID(ctx, ended.StreamID)
	if err != nil {
		metrics.TranscriptsArchived.WithLabelValues("error").Inc()
		return "", fmt.Errorf("find chat room: %w", err)
	}
	if room == nil {
		metrics.TranscriptsArchived.WithLabelValues("skipped").Inc()
		return "", nil
	}

	views, err := a.messages.Transcript(ctx, room.ID)
	if err != nil {
		metrics.TranscriptsArchived.WithLabelValues("error").Inc()
		return "", fmt.Errorf("load transcript: %w", err)
	}
	if views == nil {
		views = []domain.MessageView{}
	}

	data, err := json.Marshal(Transcript{
		StreamID:        ended.StreamID,
		RoomID:          room.ID,
		OwnerID:         ended.OwnerID,
		PeakViewerCount: ended.PeakViewerCount,
		ArchivedAt:      a.now().UTC(),
		Messages:        views,
	})
	if err != nil {
		metrics.TranscriptsArchived.WithLabelValues("error").Inc()
		return "", fmt.Errorf("encode transcript: %w", err)
	}

	key := a.Key(ended.StreamID)
	if err := a.storage.Put(ctx, key, data, contentTypeJSON); err != nil {
		metrics.TranscriptsArchived.WithLabelValues("error").Inc()
		return "", fmt.Errorf("write transcript: %w", err)
	}

	metrics.TranscriptsArchived.WithLabelValues("ok").Inc()
	l.Info().Str("key", key).Int("messages", len(views)).Msg("chat transcript archived")
	return key, nil
}

// TranscriptURL returns a URL to the archived transcript of a stream.
func (a *Archiver) TranscriptURL(ctx context.Context, streamID string) (string, error) {
	key := a.Key(streamID)
	ok, err := a.storage.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrNoTranscript
	}

	url, err := a.storage.URL(ctx, key, a.cfg.URLExpiry)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", domain.ErrNoTranscript
		}
		return "", err
	}
	return url, nil
}

// OpenTranscript streams the archived transcript JSON of a stream.
func (a *Archiver) OpenTranscript(ctx context.Context, streamID string) (io.ReadCloser, error) {
	rc, err := a.storage.Open(ctx, a.Key(streamID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrNoTranscript
	}
	return rc, err
}
