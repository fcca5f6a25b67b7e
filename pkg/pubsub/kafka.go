package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	pkglog "github.com/weiawesome/wes-io-live/pkg/log"
)

// Kafka layout: one topic per channel kind, keyed by stream id, so all
// events of a stream land on one partition in publish order.
//
//	live:stream:S1:presence -> topic "live-presence", key "S1"
//	live:stream:*:chat      -> topic "live-chat", every key

const (
	headerEventType     = "event_type"
	defaultPartitions   = 4
	defaultGroupID      = "stream-service"
	kafkaPollTimeout    = 500 * time.Millisecond
	kafkaFlushTimeoutMs = 5000
)

var groupIDRegexp = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func topicForKind(kind string) string {
	return channelPrefix + "-" + kind
}

// route resolves a channel or pattern to its topic and the stream id a
// consumer filters on. Patterns yield an empty stream id.
func route(channel string) (topic, streamID string, err error) {
	id, kind, err := ParseChannel(channel)
	if err != nil {
		return "", "", err
	}
	if id == "*" {
		id = ""
	}
	return topicForKind(kind), id, nil
}

type kafkaConsumer struct {
	consumer *kafka.Consumer
	cancel   context.CancelFunc
	done     chan struct{}
}

func (c *kafkaConsumer) stop() error {
	c.cancel()
	<-c.done
	return c.consumer.Close()
}

// KafkaPubSub carries stream events over Kafka topics.
type KafkaPubSub struct {
	producer *kafka.Producer
	cfg      KafkaConfig

	mu        sync.Mutex
	consumers map[string]*kafkaConsumer // channel or pattern
}

// NewKafkaPubSub creates the producer and makes sure a topic exists for
// every channel kind.
func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	if cfg.GroupID == "" {
		cfg.GroupID = defaultGroupID
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = defaultPartitions
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	k := &KafkaPubSub{
		producer:  p,
		cfg:       cfg,
		consumers: make(map[string]*kafkaConsumer),
	}
	go k.logProducerEvents()

	if err := k.ensureTopics(); err != nil {
		l := pkglog.L()
		l.Warn().Err(err).Msg("kafka pubsub: failed to ensure topics")
	}
	return k, nil
}

func (k *KafkaPubSub) ensureTopics() error {
	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	specs := make([]kafka.TopicSpecification, 0, len(Kinds))
	for _, kind := range Kinds {
		specs = append(specs, kafka.TopicSpecification{
			Topic:             topicForKind(kind),
			NumPartitions:     k.cfg.Partitions,
			ReplicationFactor: 1,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, specs)
	if err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}
	for _, r := range results {
		switch r.Error.Code() {
		case kafka.ErrNoError, kafka.ErrTopicAlreadyExists:
		default:
			l := pkglog.L()
			l.Warn().Str("topic", r.Topic).Str("error", r.Error.String()).Msg("kafka pubsub: failed to create topic")
		}
	}
	return nil
}

// logProducerEvents drains producer events that carry no delivery channel.
func (k *KafkaPubSub) logProducerEvents() {
	for e := range k.producer.Events() {
		if kerr, ok := e.(kafka.Error); ok {
			l := pkglog.L()
			l.Error().Err(kerr).Bool("fatal", kerr.IsFatal()).Msg("kafka pubsub: producer error")
		}
	}
}

// Publish produces event and waits for the broker acknowledgement or ctx.
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	topic, streamID, err := route(channel)
	if err != nil {
		return err
	}
	if streamID == "" {
		return fmt.Errorf("cannot publish to pattern %s", channel)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	delivered := make(chan kafka.Event, 1)
	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(streamID),
		Value:          data,
		Headers:        []kafka.Header{{Key: headerEventType, Value: []byte(event.Type)}},
	}, delivered)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	select {
	case e := <-delivered:
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			return fmt.Errorf("delivery to %s failed: %w", topic, m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe receives the events of one stream channel.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return k.subscribe(ctx, channel)
}

// SubscribePattern receives the events of every stream for the kind in pattern.
func (k *KafkaPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return k.subscribe(ctx, pattern)
}

// subscribe starts a consumer in its own group so each subscription sees
// every event on the topic, like a Redis subscriber would.
func (k *KafkaPubSub) subscribe(ctx context.Context, key string) (<-chan *Event, error) {
	topic, streamID, err := route(key)
	if err != nil {
		return nil, err
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":       k.cfg.Brokers,
		"group.id":                k.cfg.GroupID + "-" + groupIDRegexp.ReplaceAllString(key, "-"),
		"auto.offset.reset":       "latest",
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := c.Subscribe(topic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaConsumer{consumer: c, cancel: cancel, done: make(chan struct{})}
	events := make(chan *Event, subscriberBuffer)

	k.mu.Lock()
	prev := k.consumers[key]
	k.consumers[key] = sub
	k.mu.Unlock()
	if prev != nil {
		prev.stop()
	}

	go k.consume(subCtx, sub, streamID, events)
	return events, nil
}

func (k *KafkaPubSub) consume(ctx context.Context, sub *kafkaConsumer, streamID string, events chan<- *Event) {
	defer close(sub.done)
	defer close(events)

	for ctx.Err() == nil {
		msg, err := sub.consumer.ReadMessage(kafkaPollTimeout)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) {
				if kerr.IsTimeout() {
					continue
				}
				l := pkglog.L()
				l.Error().Err(kerr).Int("code", int(kerr.Code())).Bool("fatal", kerr.IsFatal()).Msg("kafka pubsub: consumer error")
				if kerr.IsFatal() {
					return
				}
			}
			continue
		}

		if streamID != "" && string(msg.Key) != streamID {
			continue
		}

		event := new(Event)
		if err := json.Unmarshal(msg.Value, event); err != nil {
			l := pkglog.L()
			l.Warn().Err(err).Str("topic", *msg.TopicPartition.Topic).Msg("kafka pubsub: dropping undecodable event")
			continue
		}

		select {
		case events <- event:
		case <-ctx.Done():
			return
		default:
			l := pkglog.L()
			l.Warn().Str("stream_id", event.StreamID).Str("type", event.Type).Msg("kafka pubsub: subscriber buffer full, dropping event")
		}
	}
}

// Unsubscribe stops the consumer registered under channel or pattern.
func (k *KafkaPubSub) Unsubscribe(ctx context.Context, key string) error {
	k.mu.Lock()
	sub, ok := k.consumers[key]
	delete(k.consumers, key)
	k.mu.Unlock()

	if !ok {
		return nil
	}
	if err := sub.stop(); err != nil {
		return fmt.Errorf("failed to close consumer: %w", err)
	}
	return nil
}

// Close stops every consumer and flushes the producer.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	consumers := k.consumers
	k.consumers = make(map[string]*kafkaConsumer)
	k.mu.Unlock()

	for _, sub := range consumers {
		sub.stop()
	}

	if remaining := k.producer.Flush(kafkaFlushTimeoutMs); remaining > 0 {
		l := pkglog.L()
		l.Warn().Int("remaining", remaining).Msg("kafka pubsub: closing with undelivered events")
	}
	k.producer.Close()
	return nil
}
