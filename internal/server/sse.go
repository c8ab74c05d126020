package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pawlink/pawlink-chat/pkg/logger"
	"github.com/pawlink/pawlink-chat/pkg/protocol"
)

// sseHeartbeatInterval is how often keep-alive frames are emitted so idle
// streams survive proxies.
const sseHeartbeatInterval = 30 * time.Second

type sseClient struct {
	userID string
	ch     chan []byte
}

// SSEBroker manages the push-only event streams. A user holds one stream
// and subscribes to individual conversations over the HTTP side channel;
// events are fanned out only to subscribers of the event's chat.
type SSEBroker struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}
	// chat id -> subscribed user ids
	subs map[string]map[string]struct{}
	log  *logger.Logger
}

func NewSSEBroker() *SSEBroker {
	return &SSEBroker{
		clients: make(map[*sseClient]struct{}),
		subs:    make(map[string]map[string]struct{}),
		log:     logger.WithContext("component", "sse_broker"),
	}
}

// ServeSSE handles one event-stream connection. The stream stays open
// until the client goes away; heartbeat frames keep it alive in between
// events.
func (b *SSEBroker) ServeSSE(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	client := &sseClient{userID: userID, ch: make(chan []byte, 16)}
	b.mu.Lock()
	b.clients[client] = struct{}{}
	b.mu.Unlock()
	b.log.Info("stream_opened", "user_id", userID)

	defer func() {
		b.mu.Lock()
		delete(b.clients, client)
		close(client.ch)
		b.mu.Unlock()
		b.log.Info("stream_closed", "user_id", userID)
	}()

	greeting, _ := json.Marshal(protocol.Envelope{Type: protocol.TypeConnected, UserID: userID})
	fmt.Fprintf(c.Writer, "data: %s\n\n", greeting)
	c.Writer.Flush()

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	notify := c.Request.Context().Done()
	for {
		select {
		case <-notify:
			return
		case <-ticker.C:
			hb, _ := json.Marshal(protocol.Envelope{
				Type:      protocol.TypeHeartbeat,
				Timestamp: time.Now().Format(time.RFC3339),
			})
			fmt.Fprintf(c.Writer, "data: %s\n\n", hb)
			c.Writer.Flush()
		case data := <-client.ch:
			fmt.Fprintf(c.Writer, "data: %s\n\n", data)
			c.Writer.Flush()
		}
	}
}

// Subscribe handles POST /api/sse/subscribe/:chatID.
func (b *SSEBroker) Subscribe(c *gin.Context) {
	chatID := c.Param("chatID")
	userID := c.Query("user_id")
	if chatID == "" || userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat id and user_id required"})
		return
	}

	b.mu.Lock()
	if _, ok := b.subs[chatID]; !ok {
		b.subs[chatID] = make(map[string]struct{})
	}
	b.subs[chatID][userID] = struct{}{}
	b.mu.Unlock()
	b.log.Debug("subscribed", "chat_id", chatID, "user_id", userID)
	c.JSON(http.StatusOK, gin.H{"subscribed": chatID})
}

// Unsubscribe handles POST /api/sse/unsubscribe/:chatID.
func (b *SSEBroker) Unsubscribe(c *gin.Context) {
	chatID := c.Param("chatID")
	userID := c.Query("user_id")
	if chatID == "" || userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat id and user_id required"})
		return
	}

	b.mu.Lock()
	if set, ok := b.subs[chatID]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(b.subs, chatID)
		}
	}
	b.mu.Unlock()
	b.log.Debug("unsubscribed", "chat_id", chatID, "user_id", userID)
	c.JSON(http.StatusOK, gin.H{"unsubscribed": chatID})
}

// PublishToChat delivers an envelope to every open stream whose user is
// subscribed to the chat. Full client buffers are skipped.
func (b *SSEBroker) PublishToChat(chatID string, env protocol.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	members, ok := b.subs[chatID]
	if !ok {
		return
	}
	for client := range b.clients {
		if _, subscribed := members[client.userID]; !subscribed {
			continue
		}
		select {
		case client.ch <- data:
		default:
		}
	}
}

// SubscriberCount reports how many users are subscribed to a chat.
func (b *SSEBroker) SubscriberCount(chatID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[chatID])
}

// StreamCount reports how many streams are open.
func (b *SSEBroker) StreamCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
