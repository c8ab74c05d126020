package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pawlink/pawlink-chat/pkg/logger"
	"github.com/pawlink/pawlink-chat/pkg/metrics"
	"github.com/pawlink/pawlink-chat/pkg/protocol"
)

// Client is one WebSocket connection owned by the hub.
type Client struct {
	UserID      string
	Conn        *websocket.Conn
	Send        chan []byte
	Hub         *Hub
	ConnectedAt time.Time

	mu         sync.Mutex
	lastActive time.Time
}

// Hub tracks connected clients and conversation room membership. Rooms are
// keyed by chat id; a client may sit in any number of rooms at once.
type Hub struct {
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[*Client]struct{}
	log     *logger.Logger
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[*Client]struct{}),
		log:        logger.WithContext("component", "hub"),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = client
			metrics.SetActiveConnections(int64(len(h.clients)))
			h.mu.Unlock()
			h.log.Info("client_registered", "user_id", client.UserID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.UserID]; ok {
				delete(h.clients, client.UserID)
				close(client.Send)
			}
			affected := []string{}
			for room, set := range h.rooms {
				if _, ok := set[client]; ok {
					affected = append(affected, room)
					delete(set, client)
				}
				if len(set) == 0 {
					delete(h.rooms, room)
				}
			}
			metrics.SetActiveConnections(int64(len(h.clients)))
			h.mu.Unlock()

			// Connections dropped without a leave frame still vacate their
			// rooms; announce the departures.
			for _, room := range affected {
				h.BroadcastRoom(room, protocol.Envelope{
					Type:   protocol.TypeUserLeft,
					ChatID: room,
					UserID: client.UserID,
				}, client)
			}
			h.log.Info("client_unregistered", "user_id", client.UserID)
		}
	}
}

func (h *Hub) Register(c *Client)   { h.register <- c }
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

func (h *Hub) JoinRoom(c *Client, chatID string) {
	h.mu.Lock()
	if _, ok := h.rooms[chatID]; !ok {
		h.rooms[chatID] = make(map[*Client]struct{})
	}
	h.rooms[chatID][c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) LeaveRoom(c *Client, chatID string) {
	h.mu.Lock()
	if set, ok := h.rooms[chatID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, chatID)
		}
	}
	h.mu.Unlock()
}

// BroadcastRoom pushes an envelope to every room member except the one
// given (pass nil to include everyone). Slow consumers are dropped rather
// than blocking the room.
func (h *Hub) BroadcastRoom(chatID string, env protocol.Envelope, except *Client) {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error("broadcast_marshal_failed", "error", err.Error())
		return
	}

	h.mu.Lock()
	set, ok := h.rooms[chatID]
	if !ok {
		h.mu.Unlock()
		return
	}
	for c := range set {
		if c == except {
			continue
		}
		select {
		case c.Send <- data:
		default:
			h.dropClientLocked(c)
		}
	}
	if len(set) == 0 {
		delete(h.rooms, chatID)
	}
	h.mu.Unlock()
}

// dropClientLocked evicts a slow consumer: it must leave every room before
// its Send channel closes, or a later broadcast would hit the closed channel.
// Caller holds h.mu.
func (h *Hub) dropClientLocked(c *Client) {
	for room, set := range h.rooms {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
	if cur, ok := h.clients[c.UserID]; ok && cur == c {
		delete(h.clients, c.UserID)
		close(c.Send)
	}
	metrics.SetActiveConnections(int64(len(h.clients)))
	h.log.Warn("client_dropped_slow_consumer", "user_id", c.UserID)
}

// SendToUser delivers an envelope to one connected user, reporting whether
// it was queued.
func (h *Hub) SendToUser(userID string, env protocol.Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		return false
	}
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case client.Send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RoomClientCount(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[chatID])
}

func (c *Client) UpdateActivity() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

func (c *Client) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}
