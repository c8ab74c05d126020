package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pawlink/pawlink-chat/pkg/logger"
	"github.com/pawlink/pawlink-chat/pkg/protocol"
)

// ChatHandler exposes the REST surface the chat clients poll and post to.
// Writes are mirrored to the realtime channels so sockets and streams see
// the same events as REST pollers.
type ChatHandler struct {
	store  *Store
	hub    *Hub
	broker *SSEBroker
	log    *logger.Logger
}

func NewChatHandler(store *Store, hub *Hub, broker *SSEBroker) *ChatHandler {
	return &ChatHandler{
		store:  store,
		hub:    hub,
		broker: broker,
		log:    logger.WithContext("component", "chat_handler"),
	}
}

// RegisterRoutes mounts the chat REST and SSE endpoints.
func (h *ChatHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/api/chats", h.ListChats)
	r.POST("/api/chats", h.CreateChat)
	r.GET("/api/chats/:chatID/messages", h.GetMessages)
	r.POST("/api/chats/:chatID/messages", h.PostMessage)
	r.PUT("/api/chats/:chatID/read", h.MarkRead)
	r.DELETE("/api/chats/:chatID/messages/:messageID", h.DeleteMessage)

	if h.broker != nil {
		r.GET("/api/sse/events", h.broker.ServeSSE)
		r.POST("/api/sse/subscribe/:chatID", h.broker.Subscribe)
		r.POST("/api/sse/unsubscribe/:chatID", h.broker.Unsubscribe)
	}
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	chats, err := h.store.ChatsForUser(userID)
	if err != nil {
		h.log.Error("list_chats_failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list chats"})
		return
	}
	c.JSON(http.StatusOK, chats)
}

func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req struct {
		PetID         string `json:"pet_id" binding:"required"`
		PetName       string `json:"pet_name"`
		ApplicantID   string `json:"applicant_id" binding:"required"`
		CoordinatorID string `json:"coordinator_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.store.CreateChat(req.PetID, req.PetName, req.ApplicantID, req.CoordinatorID)
	if err != nil {
		h.log.Error("create_chat_failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create chat"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	chatID := c.Param("chatID")
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	msgs, err := h.store.Messages(chatID, userID)
	if err != nil {
		h.log.Error("get_messages_failed", "error", err.Error(), "chat_id", chatID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *ChatHandler) PostMessage(c *gin.Context) {
	chatID := c.Param("chatID")
	var req struct {
		Text     string `json:"text" binding:"required"`
		SenderID string `json:"sender_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	senderID := req.SenderID
	if senderID == "" {
		senderID = c.Query("user_id")
	}
	if senderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sender_id required"})
		return
	}

	msg, err := h.store.InsertMessage(chatID, senderID, req.Text)
	if err != nil {
		h.log.Error("post_message_failed", "error", err.Error(), "chat_id", chatID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save message"})
		return
	}

	// Mirror the REST write to both realtime channels.
	push := protocol.Envelope{
		Type:   protocol.TypeNewMessage,
		ChatID: chatID,
		Message: &protocol.WireMessage{
			ID:        msg.ID,
			SenderID:  msg.SenderID,
			Text:      msg.Text,
			Timestamp: msg.Timestamp.Format(time.RFC3339),
		},
	}
	if h.hub != nil {
		h.hub.BroadcastRoom(chatID, push, nil)
	}
	if h.broker != nil {
		h.broker.PublishToChat(chatID, push)
		h.broker.PublishToChat(chatID, protocol.Envelope{Type: protocol.TypeChatUpdated, ChatID: chatID})
	}

	c.JSON(http.StatusCreated, msg)
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	chatID := c.Param("chatID")
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	count, err := h.store.MarkRead(chatID, userID)
	if err != nil {
		h.log.Error("mark_read_failed", "error", err.Error(), "chat_id", chatID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}
	if count > 0 {
		note := protocol.Envelope{
			Type:   protocol.TypeMessagesRead,
			ChatID: chatID,
			UserID: userID,
			Count:  count,
		}
		if h.hub != nil {
			h.hub.BroadcastRoom(chatID, note, nil)
		}
		if h.broker != nil {
			h.broker.PublishToChat(chatID, note)
		}
	}
	c.JSON(http.StatusOK, gin.H{"marked": count})
}

func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	chatID := c.Param("chatID")
	messageID := c.Param("messageID")
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	if err := h.store.DeleteMessage(chatID, messageID, userID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if h.broker != nil {
		h.broker.PublishToChat(chatID, protocol.Envelope{Type: protocol.TypeChatUpdated, ChatID: chatID})
	}
	c.JSON(http.StatusOK, gin.H{"deleted": messageID})
}
