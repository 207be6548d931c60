package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/HuynhDucPhu2502/Flickr/internal/middleware"
	"github.com/HuynhDucPhu2502/Flickr/internal/services"
)

type SwipeHandler struct {
	engine *services.SwipeEngine
	chat   *services.ChatService
	log    *logrus.Entry
}

type SwipeRequest struct {
	ToUID string `json:"to_uid" binding:"required"`
}

func NewSwipeHandler(engine *services.SwipeEngine, chat *services.ChatService, log *logrus.Entry) *SwipeHandler {
	return &SwipeHandler{engine: engine, chat: chat, log: log}
}

func (h *SwipeHandler) Like(c *gin.Context) {
	uid := middleware.UID(c)

	var req SwipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.RecordLike(c.Request.Context(), uid, req.ToUID)
	if err != nil {
		if errors.Is(err, services.ErrSelfSwipe) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record like"})
		return
	}

	resp := gin.H{"matched": result.Matched}
	if result.Matched {
		resp["match_id"] = result.MatchID
		// Thread creation rides outside the match transaction; a crash
		// here is repaired by the next EnsureThread call.
		threadID, err := h.chat.EnsureThread(c.Request.Context(), uid, req.ToUID)
		if err != nil {
			h.log.WithError(err).WithField("match_id", result.MatchID).
				Warn("failed to create thread for new match")
		} else {
			resp["thread_id"] = threadID
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SwipeHandler) Pass(c *gin.Context) {
	uid := middleware.UID(c)

	var req SwipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.engine.RecordPass(c.Request.Context(), uid, req.ToUID); err != nil {
		if errors.Is(err, services.ErrSelfSwipe) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record pass"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matched": false})
}
