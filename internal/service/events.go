package service

import (
	"context"

	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
)

// eventPublisher publishes stream events. Publishing is best effort: the
// database write has already happened, so failures are logged and dropped.
type eventPublisher struct {
	pub pubsub.Publisher
}

func newEventPublisher(pub pubsub.Publisher) eventPublisher {
	return eventPublisher{pub: pub}
}

func (p eventPublisher) publish(ctx context.Context, streamID, kind, eventType string, payload interface{}) {
	if p.pub == nil {
		return
	}
	l := log.Ctx(ctx)

	event, err := pubsub.NewEvent(eventType, streamID, payload)
	if err != nil {
		l.Warn().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}
	if err := p.pub.Publish(ctx, pubsub.StreamChannel(streamID, kind), event); err != nil {
		l.Warn().Err(err).Str(log.FieldStreamID, streamID).Str("event_type", eventType).Msg("failed to publish event")
	}
}
