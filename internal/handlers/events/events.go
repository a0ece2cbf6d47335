// Package events receives chat-platform lifecycle events and exposes
// the operator controls over pending verifications.
package events

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/arnavbhatt/rollcall/internal/lifecycle"
)

var (
	logger = log.With().Str("component", "events").Logger()
)

type Handlers struct {
	lifecycle *lifecycle.Lifecycle
}

func New(l *lifecycle.Lifecycle) *Handlers {
	return &Handlers{lifecycle: l}
}

func (h *Handlers) RegisterHandlers(rg *gin.RouterGroup) {
	evRoutes := rg.Group("/events")
	{
		evRoutes.POST("/member-joined", h.handleMemberJoined)
		evRoutes.POST("/member-left", h.handleMemberLeft)
		evRoutes.POST("/verify-attempt", h.handleVerifyAttempt)
	}

	adminRoutes := rg.Group("/admin")
	{
		adminRoutes.GET("/pending", h.handlePending)
		adminRoutes.POST("/force-verify", h.handleForceVerify)
		adminRoutes.POST("/timeout", h.handleSetTimeout)
	}
}

type memberParams struct {
	MemberID string `json:"member_id" binding:"required"`
}

func (h *Handlers) handleMemberJoined(c *gin.Context) {
	params := &memberParams{}
	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "member_id is required"})
		return
	}

	h.lifecycle.MemberJoined(params.MemberID)
	c.JSON(http.StatusOK, gin.H{"message": "Verification pending"})
}

func (h *Handlers) handleMemberLeft(c *gin.Context) {
	params := &memberParams{}
	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "member_id is required"})
		return
	}

	h.lifecycle.MemberLeft(params.MemberID)
	c.JSON(http.StatusOK, gin.H{"message": "Pending record dropped"})
}

type verifyAttemptParams struct {
	MemberID string `json:"member_id" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Token    string `json:"token" binding:"required"`
}

func (h *Handlers) handleVerifyAttempt(c *gin.Context) {
	params := &verifyAttemptParams{}
	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "member_id, email and token are required"})
		return
	}

	outcome, err := h.lifecycle.VerifyAttempt(params.MemberID, params.Email, params.Token)
	if err != nil {
		logger.Error().Err(err).Str("member_id", params.MemberID).Msg("Verify attempt failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error verifying member"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": outcome.Success(),
		"outcome": outcome,
	})
}

type pendingEntry struct {
	MemberID         string    `json:"member_id"`
	Email            string    `json:"email,omitempty"`
	Deadline         time.Time `json:"deadline"`
	RemainingSeconds int       `json:"remaining_seconds"`
	Attempts         int       `json:"attempts"`
}

func (h *Handlers) handlePending(c *gin.Context) {
	views := h.lifecycle.Pending()

	entries := make([]pendingEntry, 0, len(views))
	for _, v := range views {
		remaining := int(v.Remaining.Seconds())
		if remaining < 0 {
			remaining = 0
		}
		entries = append(entries, pendingEntry{
			MemberID:         v.MemberID,
			Email:            v.Email,
			Deadline:         v.Deadline,
			RemainingSeconds: remaining,
			Attempts:         v.Attempts,
		})
	}

	c.JSON(http.StatusOK, gin.H{"pending": entries})
}

func (h *Handlers) handleForceVerify(c *gin.Context) {
	params := &memberParams{}
	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "member_id is required"})
		return
	}

	if err := h.lifecycle.ForceVerify(params.MemberID); err != nil {
		if errors.Is(err, lifecycle.ErrNotPending) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Member has no pending verification"})
			return
		}
		logger.Error().Err(err).Str("member_id", params.MemberID).Msg("Force verify failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error force-verifying member"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member verified"})
}

type setTimeoutParams struct {
	Seconds int `json:"seconds" binding:"required"`
}

func (h *Handlers) handleSetTimeout(c *gin.Context) {
	params := &setTimeoutParams{}
	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seconds is required"})
		return
	}

	if params.Seconds < 60 || params.Seconds > 3600 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Timeout must be between 60 and 3600 seconds"})
		return
	}

	if err := h.lifecycle.SetTimeout(time.Duration(params.Seconds) * time.Second); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Timeout updated, applies to future joins"})
}
