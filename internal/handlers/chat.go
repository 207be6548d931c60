package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/HuynhDucPhu2502/Flickr/internal/middleware"
	"github.com/HuynhDucPhu2502/Flickr/internal/services"
)

type ChatHandler struct {
	chat *services.ChatService
}

type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

func (h *ChatHandler) ListThreads(c *gin.Context) {
	uid := middleware.UID(c)

	threads, err := h.chat.ListThreads(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list threads"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	uid := middleware.UID(c)
	threadID := c.Param("id")

	if !h.requireParticipant(c, threadID, uid) {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	messages, err := h.chat.ListMessages(c.Request.Context(), threadID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	uid := middleware.UID(c)
	threadID := c.Param("id")

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.chat.SendMessage(c.Request.Context(), threadID, uid, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrThreadNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": message})
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	uid := middleware.UID(c)
	threadID := c.Param("id")

	if !h.requireParticipant(c, threadID, uid) {
		return
	}

	if err := h.chat.MarkRead(c.Request.Context(), threadID, uid); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark messages read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Marked read"})
}

// requireParticipant loads the thread and rejects callers who are not a
// member. Writes the error response itself and reports whether to proceed.
func (h *ChatHandler) requireParticipant(c *gin.Context, threadID, uid string) bool {
	thread, err := h.chat.Thread(c.Request.Context(), threadID)
	if err != nil {
		if errors.Is(err, services.ErrThreadNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load thread"})
		}
		return false
	}
	if thread.UserA != uid && thread.UserB != uid {
		c.JSON(http.StatusForbidden, gin.H{"error": services.ErrNotParticipant.Error()})
		return false
	}
	return true
}
