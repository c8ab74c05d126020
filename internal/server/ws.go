package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/pawlink/pawlink-chat/pkg/logger"
	"github.com/pawlink/pawlink-chat/pkg/protocol"
	"github.com/pawlink/pawlink-chat/pkg/utils"
)

const (
	pingPeriod     = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 512 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSServer terminates the bidirectional chat connections and translates
// client frames into store writes and room broadcasts.
type WSServer struct {
	hub       *Hub
	store     *Store
	broker    *SSEBroker
	jwtSecret string
	log       *logger.Logger
}

// NewWSServer wires the WebSocket endpoint. broker may be nil; when set,
// events are mirrored to SSE subscribers so clients on either transport
// stay in sync.
func NewWSServer(hub *Hub, store *Store, broker *SSEBroker, jwtSecret string) *WSServer {
	return &WSServer{
		hub:       hub,
		store:     store,
		broker:    broker,
		jwtSecret: jwtSecret,
		log:       logger.WithContext("component", "ws_server"),
	}
}

// HandleWebSocket upgrades the connection after validating the token query
// parameter and starts the read/write pumps.
func (s *WSServer) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}
	claims, err := utils.ValidateJWT(token, s.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Error("upgrade_failed", "error", err.Error())
		return
	}

	client := &Client{
		UserID:      claims.UserID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Hub:         s.hub,
		ConnectedAt: time.Now(),
	}
	client.UpdateActivity()
	s.hub.Register(client)

	greeting, _ := json.Marshal(protocol.Envelope{Type: protocol.TypeConnected, UserID: claims.UserID})
	client.Send <- greeting

	go client.writePump()
	go s.readPump(client)
}

func (s *WSServer) readPump(c *Client) {
	defer func() {
		s.hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		c.UpdateActivity()
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("read_error", "error", err.Error(), "user_id", c.UserID)
			}
			return
		}
		c.UpdateActivity()

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.sendError(c, "malformed frame")
			continue
		}
		s.handleFrame(c, env)
	}
}

func (s *WSServer) handleFrame(c *Client, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypePing:
		s.sendEnvelope(c, protocol.Envelope{Type: protocol.TypePong})

	case protocol.TypeJoin:
		if env.ChatID == "" {
			s.sendError(c, "join requires chat_id")
			return
		}
		s.hub.JoinRoom(c, env.ChatID)
		s.sendEnvelope(c, protocol.Envelope{Type: protocol.TypeJoined, ChatID: env.ChatID})
		s.hub.BroadcastRoom(env.ChatID, protocol.Envelope{
			Type:   protocol.TypeUserJoined,
			ChatID: env.ChatID,
			UserID: c.UserID,
		}, c)

	case protocol.TypeLeave:
		if env.ChatID == "" {
			return
		}
		s.hub.LeaveRoom(c, env.ChatID)
		s.sendEnvelope(c, protocol.Envelope{Type: protocol.TypeLeft, ChatID: env.ChatID})
		s.hub.BroadcastRoom(env.ChatID, protocol.Envelope{
			Type:   protocol.TypeUserLeft,
			ChatID: env.ChatID,
			UserID: c.UserID,
		}, c)

	case protocol.TypeMessage:
		if env.ChatID == "" || env.Text == "" {
			s.sendError(c, "message requires chat_id and text")
			return
		}
		msg, err := s.store.InsertMessage(env.ChatID, c.UserID, env.Text)
		if err != nil {
			s.log.Error("message_persist_failed", "error", err.Error(), "chat_id", env.ChatID)
			s.sendError(c, "message not saved")
			return
		}
		s.sendEnvelope(c, protocol.Envelope{Type: protocol.TypeMessageSent, MessageID: msg.ID, ChatID: env.ChatID})
		push := protocol.Envelope{
			Type:   protocol.TypeNewMessage,
			ChatID: env.ChatID,
			Message: &protocol.WireMessage{
				ID:        msg.ID,
				SenderID:  msg.SenderID,
				Text:      msg.Text,
				Timestamp: msg.Timestamp.Format(time.RFC3339),
			},
		}
		s.hub.BroadcastRoom(env.ChatID, push, nil)
		s.mirrorToSSE(env.ChatID, push)

	case protocol.TypeRead:
		if env.ChatID == "" {
			return
		}
		count, err := s.store.MarkRead(env.ChatID, c.UserID)
		if err != nil {
			s.log.Error("mark_read_failed", "error", err.Error(), "chat_id", env.ChatID)
			return
		}
		if count > 0 {
			note := protocol.Envelope{
				Type:   protocol.TypeMessagesRead,
				ChatID: env.ChatID,
				UserID: c.UserID,
				Count:  count,
			}
			s.hub.BroadcastRoom(env.ChatID, note, c)
			s.mirrorToSSE(env.ChatID, note)
		}

	case protocol.TypeTyping:
		if env.ChatID == "" {
			return
		}
		s.hub.BroadcastRoom(env.ChatID, protocol.Envelope{
			Type:   protocol.TypeTyping,
			ChatID: env.ChatID,
			UserID: c.UserID,
		}, c)

	default:
		s.log.Debug("unknown_frame_type", "type", string(env.Type), "user_id", c.UserID)
	}
}

// mirrorToSSE forwards a room event to subscribers on the push-only
// transport, plus a chat_updated nudge for list refreshes.
func (s *WSServer) mirrorToSSE(chatID string, env protocol.Envelope) {
	if s.broker == nil {
		return
	}
	s.broker.PublishToChat(chatID, env)
	if env.Type == protocol.TypeNewMessage {
		s.broker.PublishToChat(chatID, protocol.Envelope{Type: protocol.TypeChatUpdated, ChatID: chatID})
	}
}

func (s *WSServer) sendEnvelope(c *Client, env protocol.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

func (s *WSServer) sendError(c *Client, detail string) {
	s.sendEnvelope(c, protocol.Envelope{Type: protocol.TypeError, Detail: detail})
}

func (c *Client) writePump() {
	defer c.Conn.Close()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
