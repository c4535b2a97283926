package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Topic names for the three audience classes.
const (
	TopicStaff         = "staff"
	TopicPublicDisplay = "public-display"
	userTopicPrefix    = "user:"
)

func UserTopic(userID string) string {
	return userTopicPrefix + userID
}

type Client struct {
	ID     string
	Send   chan []byte
	topics map[string]bool
}

func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 16
	}
	return &Client{
		ID:     id,
		Send:   make(chan []byte, buffer),
		topics: make(map[string]bool),
	}
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	CreatedAt time.Time   `json:"created_at"`
}

type SubscribeMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.topics[topic] = true
}

func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(client.topics, topic)
}

// Publish delivers the event to every client currently subscribed to the
// topic. Delivery is best-effort: a client whose buffer is full loses the
// message, and clients joining later never see it.
func (h *Hub) Publish(topic, eventType string, payload interface{}) {
	event := Event{Type: eventType, Payload: payload, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("marshal event %s: %v", eventType, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !client.topics[topic] {
			continue
		}
		select {
		case client.Send <- data:
		default:
			log.Printf("drop %s event for client %s", eventType, client.ID)
		}
	}
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	if msg.Topic == "" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
