package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ChannelAll receives every hazard event; clients can also subscribe to a
// single hazard type (e.g. "pothole") to filter at the feed.
const ChannelAll = "all"

// Hub fans hazard events out to websocket subscribers. With a redis client
// it also publishes to redis pub/sub so every instance behind a load
// balancer sees events created on its peers.
type Hub struct {
	id      string
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	Channel string
	Send    chan []byte
}

// envelope wraps payloads published to redis. Local subscribers already got
// the payload directly from Broadcast, so the subscription loop uses Origin
// to drop this instance's own publications when they come back around.
type envelope struct {
	Origin  string `json:"origin"`
	Payload []byte `json:"payload"`
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		id:      uuid.NewString(),
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(channel string) *Client {
	client := &Client{
		Channel: channel,
		Send:    make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[channel] == nil {
		h.clients[channel] = map[*Client]struct{}{}
	}
	h.clients[channel][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if channelClients, ok := h.clients[client.Channel]; ok {
		delete(channelClients, client)
		if len(channelClients) == 0 {
			delete(h.clients, client.Channel)
		}
	}
	close(client.Send)
}

func (h *Hub) subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[channel])
}

// Broadcast delivers payload to local subscribers of channel and to the
// matching redis channel. Slow subscribers are skipped, not blocked on.
func (h *Hub) Broadcast(channel string, payload []byte) {
	h.deliverLocal(channel, payload)

	if h.redis != nil {
		raw, err := json.Marshal(envelope{Origin: h.id, Payload: payload})
		if err == nil {
			err = h.redis.Publish(context.Background(), redisChannel(channel), raw).Err()
		}
		if err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

func (h *Hub) deliverLocal(channel string, payload []byte) {
	h.mu.RLock()
	clients := h.clients[channel]
	h.mu.RUnlock()

	for client := range clients {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "hazards:*:feed")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		payload := []byte(msg.Payload)
		var env envelope
		if err := json.Unmarshal(payload, &env); err == nil && env.Origin != "" {
			if env.Origin == h.id {
				// Our own publication; local clients were already served.
				continue
			}
			payload = env.Payload
		}
		h.deliverLocal(channelFromRedis(msg.Channel), payload)
	}
}

func redisChannel(channel string) string {
	return "hazards:" + channel + ":feed"
}

func channelFromRedis(ch string) string {
	// hazards:{channel}:feed
	const prefix = "hazards:"
	const suffix = ":feed"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
