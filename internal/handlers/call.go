package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/HuynhDucPhu2502/Flickr/internal/config"
	"github.com/HuynhDucPhu2502/Flickr/internal/middleware"
	"github.com/HuynhDucPhu2502/Flickr/internal/models"
	"github.com/HuynhDucPhu2502/Flickr/internal/services"
)

type CallHandler struct {
	calls *services.CallService
	chat  *services.ChatService
	cfg   *config.Config
}

type OfferRequest struct {
	SDP string `json:"sdp" binding:"required"`
	To  string `json:"to" binding:"required"`
}

type AnswerRequest struct {
	SDP string `json:"sdp" binding:"required"`
}

type CandidateRequest struct {
	Side      string              `json:"side" binding:"required,oneof=offer answer"`
	Candidate models.ICECandidate `json:"candidate" binding:"required"`
}

func NewCallHandler(calls *services.CallService, chat *services.ChatService, cfg *config.Config) *CallHandler {
	return &CallHandler{calls: calls, chat: chat, cfg: cfg}
}

// ICEServers hands clients the STUN/TURN configuration so credentials
// stay server-side.
func (h *CallHandler) ICEServers(c *gin.Context) {
	servers := []gin.H{{"urls": []string{h.cfg.STUNURL}}}
	if h.cfg.TURNURL != "" {
		servers = append(servers, gin.H{
			"urls":       []string{h.cfg.TURNURL},
			"username":   h.cfg.TURNUsername,
			"credential": h.cfg.TURNCredential,
		})
	}
	c.JSON(http.StatusOK, gin.H{"ice_servers": servers})
}

func (h *CallHandler) Offer(c *gin.Context) {
	uid := middleware.UID(c)
	threadID := c.Param("id")

	var req OfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.requireParticipant(c, threadID, uid) {
		return
	}

	offer := models.SessionDesc{
		Type: "offer",
		SDP:  req.SDP,
		From: uid,
		To:   req.To,
	}
	if err := h.calls.PlaceOffer(c.Request.Context(), threadID, offer); err != nil {
		if errors.Is(err, services.ErrCallActive) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to place offer"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"thread_id": threadID})
}

func (h *CallHandler) Answer(c *gin.Context) {
	uid := middleware.UID(c)
	threadID := c.Param("id")

	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.requireParticipant(c, threadID, uid) {
		return
	}

	session, err := h.calls.Session(c.Request.Context(), threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load call"})
		return
	}
	if session == nil || session.Offer == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": services.ErrNoOffer.Error()})
		return
	}

	answer := models.SessionDesc{
		Type: "answer",
		SDP:  req.SDP,
		From: uid,
		To:   session.Offer.From,
	}
	if err := h.calls.Answer(c.Request.Context(), threadID, answer); err != nil {
		if errors.Is(err, services.ErrNoOffer) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to answer call"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread_id": threadID})
}

func (h *CallHandler) GetSession(c *gin.Context) {
	uid := middleware.UID(c)
	threadID := c.Param("id")

	if !h.requireParticipant(c, threadID, uid) {
		return
	}

	session, err := h.calls.Session(c.Request.Context(), threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load call"})
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No call for this thread"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *CallHandler) AddCandidate(c *gin.Context) {
	uid := middleware.UID(c)
	threadID := c.Param("id")

	var req CandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.requireParticipant(c, threadID, uid) {
		return
	}

	if err := h.calls.AddCandidate(c.Request.Context(), threadID, req.Side, req.Candidate); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record candidate"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"thread_id": threadID})
}

func (h *CallHandler) ListCandidates(c *gin.Context) {
	uid := middleware.UID(c)
	threadID := c.Param("id")
	side := c.Query("side")
	if side != models.CandidateSideOffer && side != models.CandidateSideAnswer {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be offer or answer"})
		return
	}

	if !h.requireParticipant(c, threadID, uid) {
		return
	}

	candidates, err := h.calls.Candidates(c.Request.Context(), threadID, side)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list candidates"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

func (h *CallHandler) End(c *gin.Context) {
	uid := middleware.UID(c)
	threadID := c.Param("id")

	if !h.requireParticipant(c, threadID, uid) {
		return
	}

	if err := h.calls.End(c.Request.Context(), threadID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to end call"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Call ended"})
}

func (h *CallHandler) requireParticipant(c *gin.Context, threadID, uid string) bool {
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
