package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-relay/internal/models"
	"chat-relay/internal/repositories"
	"chat-relay/internal/telemetry"
	"chat-relay/internal/ws"
)

// ChatHandler manages the chat REST endpoints.
type ChatHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	hub         *ws.Hub
	audit       *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, hub *ws.Hub, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		hub:         hub,
		audit:       audit,
	}
}

// ToggleChat creates a direct chat with another user, or removes it if
// one already exists.
func (h *ChatHandler) ToggleChat(c *gin.Context) {
	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if userID == req.UserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	existing, err := h.chatRepo.FindDirectChat(c.Request.Context(), userID, req.UserID)
	switch {
	case err == nil:
		if err := h.chatRepo.DeleteChat(c.Request.Context(), existing.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove chat"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "chat removed", "chat_id": existing.ID})
	case errors.Is(err, repositories.ErrChatNotFound):
		chat, err := h.chatRepo.CreateDirectChat(c.Request.Context(), userID, req.UserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "chat created", "chat": chat})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up chat"})
	}
}

// ListChats returns the chats visible to the authenticated user.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt("userID")

	chats, err := h.chatRepo.ListChatsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// GetChat returns a chat with its full message history.
func (h *ChatHandler) GetChat(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	userID := c.GetInt("userID")
	member, err := h.chatRepo.IsMember(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}

	msgs, err := h.messageRepo.ListChatMessages(c.Request.Context(), chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat": chat, "messages": msgs})
}

// CreateGroupChat creates a group chat with the caller as admin.
func (h *ChatHandler) CreateGroupChat(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required"`
		MemberIDs []int  `json:"member_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.MemberIDs) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a group needs at least two other members"})
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chatRepo.CreateGroupChat(c.Request.Context(), userID, req.Name, req.MemberIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"chat": chat})
}

// RenameGroupChat updates the name of a group chat.
func (h *ChatHandler) RenameGroupChat(c *gin.Context) {
	var req struct {
		ChatID int    `json:"chat_id" binding:"required"`
		Name   string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.requireMember(c, req.ChatID) {
		return
	}
	if err := h.chatRepo.RenameChat(c.Request.Context(), req.ChatID, req.Name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not rename group"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "group renamed"})
}

// AddGroupMember adds a user to a group chat.
func (h *ChatHandler) AddGroupMember(c *gin.Context) {
	var req struct {
		ChatID int `json:"chat_id" binding:"required"`
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.requireMember(c, req.ChatID) {
		return
	}
	if err := h.chatRepo.AddMember(c.Request.Context(), req.ChatID, req.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add member"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "member added"})
}

// RemoveGroupMember removes a user from a group chat.
func (h *ChatHandler) RemoveGroupMember(c *gin.Context) {
	var req struct {
		ChatID int `json:"chat_id" binding:"required"`
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.requireMember(c, req.ChatID) {
		return
	}
	if err := h.chatRepo.RemoveMember(c.Request.Context(), req.ChatID, req.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove member"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "member removed"})
}

// PostChatMessage stores a message, refreshes the chat's latest-message
// summary, and broadcasts it to the chat's room. Broadcasting happens
// here, after persistence succeeds, so a client crash can no longer
// leave a stored message that was never delivered.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	userID := c.GetInt("userID")
	member, err := h.chatRepo.IsMember(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	var req struct {
		Text  string                  `json:"text"`
		Files []models.FileAttachment `json:"files"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Text == "" && len(req.Files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message text or files required"})
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), chatID, userID, req.Text, req.Files)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	latest := models.LatestMessage{
		Text:     summaryText(msg),
		SenderID: userID,
		Status:   "sent",
		SentAt:   msg.CreatedAt,
	}
	if err := h.chatRepo.UpdateLatestMessage(c.Request.Context(), chatID, latest); err != nil {
		// The message itself is stored; a stale summary self-corrects on
		// the next send.
		c.Error(err)
	}

	h.hub.BroadcastChatMessage(chatID, msg)
	h.emitAudit(c, fmt.Sprintf("message %d sent in chat %d", msg.ID, chatID))
	c.JSON(http.StatusCreated, msg)
}

func (h *ChatHandler) requireMember(c *gin.Context, chatID int) bool {
	userID := c.GetInt("userID")
	member, err := h.chatRepo.IsMember(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return false
	}
	return true
}

func (h *ChatHandler) emitAudit(c *gin.Context, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), "INFO", text, requestIDFromContext(c), userIDFromContext(c))
}

func summaryText(msg models.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	if len(msg.Files) > 0 {
		return msg.Files[0].Filename
	}
	return ""
}
