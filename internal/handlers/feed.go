package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/HuynhDucPhu2502/Flickr/internal/middleware"
	"github.com/HuynhDucPhu2502/Flickr/internal/services"
)

type FeedHandler struct {
	feed *services.FeedService
}

func NewFeedHandler(feed *services.FeedService) *FeedHandler {
	return &FeedHandler{feed: feed}
}

func (h *FeedHandler) Candidates(c *gin.Context) {
	uid := middleware.UID(c)

	take := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		take = n
	}

	candidates, err := h.feed.Candidates(c.Request.Context(), uid, take)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load candidates"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"candidates": candidates,
		"count":      len(candidates),
	})
}
