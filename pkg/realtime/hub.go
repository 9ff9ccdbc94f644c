package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event names pushed to session subscribers.
const (
	EventSeatsChanged  = "seats_changed"
	EventStatusChanged = "status_changed"
)

// Message is the envelope written to subscribers.
type Message struct {
	Event   string          `json:"event"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// Client is one subscriber of a topic.
type Client struct {
	Topic  string
	UserID string
	Send   chan []byte
}

type outbound struct {
	topic string
	data  []byte
}

// Hub fans messages out to the subscribers of each topic. Publishing never blocks the
// caller: when the hub backlog or a client buffer is full the message is dropped.
type Hub struct {
	topics map[string]map[*Client]struct{}
	mu     sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
	done       chan struct{}
	stopOnce   sync.Once

	bufferSize int
	logger     *zap.Logger
}

// NewHub creates a hub. bufferSize bounds both the hub backlog and each client buffer.
func NewHub(bufferSize int, logger *zap.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		topics:     make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, bufferSize),
		done:       make(chan struct{}),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// NewClient allocates a client for topic with the hub's buffer size.
func (h *Hub) NewClient(topic, userID string) *Client {
	return &Client{Topic: topic, UserID: userID, Send: make(chan []byte, h.bufferSize)}
}

// Run processes registrations and broadcasts until ctx is cancelled, then closes every
// client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.stopOnce.Do(func() { close(h.done) })
			h.mu.Lock()
			for topic, clients := range h.topics {
				for client := range clients {
					close(client.Send)
				}
				delete(h.topics, topic)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.topics[client.Topic] == nil {
				h.topics[client.Topic] = make(map[*Client]struct{})
			}
			h.topics[client.Topic][client] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("realtime subscriber joined", zap.String("topic", client.Topic), zap.String("user_id", client.UserID))

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.topics[client.Topic]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.topics, client.Topic)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.topics[msg.topic] {
				select {
				case client.Send <- msg.data:
				default:
					h.logger.Debug("realtime client buffer full, dropping message", zap.String("topic", msg.topic))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register subscribes a client. It blocks until the hub loop accepts it; once the hub has
// stopped the client is closed straight away.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister removes a client and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues event for the subscribers of topic.
func (h *Hub) Publish(topic, event string, payload interface{}) {
	if h == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("marshal realtime payload", zap.String("event", event), zap.Error(err))
		return
	}
	data, err := json.Marshal(Message{Event: event, Topic: topic, Payload: raw, SentAt: time.Now().UTC()})
	if err != nil {
		h.logger.Warn("marshal realtime message", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{topic: topic, data: data}:
	default:
		h.logger.Warn("realtime backlog full, dropping message", zap.String("topic", topic), zap.String("event", event))
	}
}

// Subscribers returns the number of clients on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
