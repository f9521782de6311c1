package websocket

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/isdelr/lab-portal/internal/models"
)

type envelope struct {
	topic string
	data  []byte
}

// Hub maintains the set of active clients and broadcasts messages to them.
// All client bookkeeping happens on the Run goroutine.
type Hub struct {
	// A map of topics to the set of clients subscribed to it.
	subscriptions map[string]map[*Client]bool

	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	allowedOrigins map[string]bool
}

// NewHub creates a new Hub. allowedOrigins are accepted in addition to the
// request's own host during the upgrade handshake.
func NewHub(allowedOrigins []string) *Hub {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Hub{
		subscriptions:  make(map[string]map[*Client]bool),
		broadcast:      make(chan envelope, 64),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		done:           make(chan struct{}),
		allowedOrigins: origins,
	}
}

// Run starts the Hub's message processing loop and blocks until ctx is done.
// Every client still connected at that point has its send channel closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for topic, subs := range h.subscriptions {
				for client := range subs {
					close(client.send)
				}
				delete(h.subscriptions, topic)
			}
			log.Info().Msg("Websocket hub stopped")
			return

		case client := <-h.register:
			if h.subscriptions[client.Topic] == nil {
				h.subscriptions[client.Topic] = make(map[*Client]bool)
			}
			h.subscriptions[client.Topic][client] = true
			log.Info().Str("topic", client.Topic).Int("total_clients", h.clientCount()).Msg("Client connected")

		case client := <-h.unregister:
			if h.removeClient(client) {
				log.Info().Str("topic", client.Topic).Int("total_clients", h.clientCount()).Msg("Client disconnected")
			}

		case msg := <-h.broadcast:
			for client := range h.subscriptions[msg.topic] {
				select {
				case client.send <- msg.data:
				default:
					// Slow consumer
					h.removeClient(client)
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// BroadcastTo sends a message to all clients subscribed to topic. It never
// blocks once the hub has stopped.
func (h *Hub) BroadcastTo(topic string, message []byte) {
	if message == nil {
		return
	}
	select {
	case h.broadcast <- envelope{topic: topic, data: message}:
	case <-h.done:
	}
}

// PublishAudit pushes a committed audit entry to audit stream subscribers.
func (h *Hub) PublishAudit(entry models.AuditEntry) {
	h.BroadcastTo(TopicAudit, NewAuditMessage(entry))
}

// PublishHostStats pushes a host snapshot to host stream subscribers.
func (h *Hub) PublishHostStats(stats HostStats) {
	h.BroadcastTo(TopicHost, NewHostStatsMessage(stats))
}

// Register adds a client. It reports false if the hub has stopped.
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

func (h *Hub) removeClient(client *Client) bool {
	subs, ok := h.subscriptions[client.Topic]
	if !ok || !subs[client] {
		return false
	}
	delete(subs, client)
	if len(subs) == 0 {
		delete(h.subscriptions, client.Topic)
	}
	close(client.send)
	return true
}

func (h *Hub) clientCount() int {
	n := 0
	for _, subs := range h.subscriptions {
		n += len(subs)
	}
	return n
}
