package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/weiawesome/wes-io-live/internal/metrics"
	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
)

// Hub fans stream events out to the websocket clients watching each stream.
type Hub struct {
	streams    map[string]map[string]*Client // streamID -> clientID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *StreamMessage
	done       chan struct{}
	mu         sync.RWMutex
}

// StreamMessage is an encoded event addressed to one stream's clients.
type StreamMessage struct {
	StreamID string
	Message  []byte
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		streams:    make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *StreamMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.streams[client.StreamID]; !ok {
				h.streams[client.StreamID] = make(map[string]*Client)
			}
			h.streams[client.StreamID][client.ID] = client
			h.mu.Unlock()
			metrics.WebSocketConnections.Inc()
			l := log.L()
			l.Debug().Str("client_id", client.ID).Str(log.FieldStreamID, client.StreamID).Msg("client registered")

		case client := <-h.unregister:
			if h.remove(client) {
				l := log.L()
				l.Debug().Str("client_id", client.ID).Str(log.FieldStreamID, client.StreamID).Msg("client unregistered")
			}

		case msg := <-h.broadcast:
			var slow []*Client
			h.mu.RLock()
			for _, client := range h.streams[msg.StreamID] {
				select {
				case client.Send <- msg.Message:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			for _, client := range slow {
				h.remove(client)
			}
		}
	}
}

// Relay forwards every stream event from the subscriber to the hub until
// ctx is cancelled.
func (h *Hub) Relay(ctx context.Context, sub pubsub.Subscriber) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	merged := make(chan *pubsub.Event, 256)
	var wg sync.WaitGroup
	for _, kind := range pubsub.Kinds {
		pattern := pubsub.KindPattern(kind)
		events, err := sub.SubscribePattern(ctx, pattern)
		if err != nil {
			// Stop the forwarders of the kinds already subscribed.
			cancel()
			wg.Wait()
			return fmt.Errorf("subscribe to %s: %w", pattern, err)
		}
		defer sub.Unsubscribe(context.Background(), pattern)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-events:
					if !ok {
						return
					}
					select {
					case merged <- event:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	for event := range merged {
		if err := h.Publish(event); err != nil {
			l := log.L()
			l.Warn().Err(err).Str(log.FieldStreamID, event.StreamID).Msg("failed to relay event")
		}
	}
	return nil
}

// Publish queues an event for the clients of its stream.
func (h *Hub) Publish(event *pubsub.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &StreamMessage{StreamID: event.StreamID, Message: data}:
	case <-h.done:
	}
	return nil
}

// Register adds a client to its stream. It reports false once the hub has
// stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of clients watching a stream.
func (h *Hub) ClientCount(streamID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[streamID])
}

func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.streams[client.StreamID]
	if !ok {
		return false
	}
	if _, ok := clients[client.ID]; !ok {
		return false
	}
	delete(clients, client.ID)
	if len(clients) == 0 {
		delete(h.streams, client.StreamID)
	}
	close(client.Send)
	metrics.WebSocketConnections.Dec()
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for streamID, clients := range h.streams {
		for _, client := range clients {
			close(client.Send)
			metrics.WebSocketConnections.Dec()
		}
		delete(h.streams, streamID)
	}
}
