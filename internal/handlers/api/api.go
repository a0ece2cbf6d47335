// Package api exposes the roster admin surface: CSV upload, email
// dispatch, listing, token refresh, verification, and deletion.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/arnavbhatt/rollcall/internal/mailer"
	"github.com/arnavbhatt/rollcall/internal/models"
	"github.com/arnavbhatt/rollcall/internal/registry"
	"github.com/arnavbhatt/rollcall/internal/storage"
)

var (
	logger = log.With().Str("component", "api").Logger()
)

// Handlers wires the registry and mailer to gin routes.
type Handlers struct {
	registry   *registry.Registry
	sender     mailer.Sender
	attempts   *storage.FailedAttemptStorage
	expiryDays int
}

func New(reg *registry.Registry, sender mailer.Sender, attempts *storage.FailedAttemptStorage, expiryDays int) *Handlers {
	return &Handlers{
		registry:   reg,
		sender:     sender,
		attempts:   attempts,
		expiryDays: expiryDays,
	}
}

func (h *Handlers) RegisterHandlers(rg *gin.RouterGroup) {
	rg.POST("/upload-csv", h.handleUploadCSV)
	rg.POST("/send-emails", h.handleSendEmails)
	rg.GET("/users", h.handleListUsers)
	rg.POST("/refresh-token/:id", h.handleRefreshToken)
	rg.POST("/verify", h.handleVerify)
	rg.DELETE("/users/:id", h.handleDeleteUser)
	rg.DELETE("/users", h.handleDeleteAll)
}

func (h *Handlers) handleUploadCSV(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}
	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File must be a CSV"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open uploaded roster")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}
	defer file.Close()

	result, err := h.registry.IngestCSV(file)
	if err != nil {
		logger.Error().Err(err).Msg("Roster ingestion failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

type sendEmailsParams struct {
	UserIDs []uint `json:"user_ids"`
}

// handleSendEmails delivers verification emails to the selected users,
// or to every unverified user when no IDs are given. Per-recipient
// failures are reported, never fatal to the batch.
func (h *Handlers) handleSendEmails(c *gin.Context) {
	params := &sendEmailsParams{}
	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed request body"})
		return
	}

	var (
		users []models.User
		err   error
	)
	if len(params.UserIDs) == 0 {
		users, err = h.registry.ListUnverified()
	} else {
		users, err = h.registry.ListByIDs(params.UserIDs)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load email recipients")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if len(users) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No users found"})
		return
	}

	recipients := make([]mailer.Recipient, 0, len(users))
	for _, u := range users {
		recipients = append(recipients, mailer.Recipient{
			Email: u.Email,
			Message: mailer.Message{
				Name:       u.Name,
				Token:      u.Token,
				ExpiryDays: h.expiryDays,
			},
		})
	}

	results := mailer.SendBatch(h.sender, recipients)
	sent := 0
	for _, res := range results {
		if res.Sent {
			sent++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     sent > 0,
		"emails_sent": sent,
		"results":     results,
	})
}

func (h *Handlers) handleListUsers(c *gin.Context) {
	views, err := h.registry.List()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handlers) handleRefreshToken(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	user, err := h.registry.RefreshToken(uint(id))
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		case errors.Is(err, registry.ErrAlreadyVerified):
			c.JSON(http.StatusConflict, gin.H{"error": "User already verified"})
		default:
			logger.Error().Err(err).Uint64("user_id", id).Msg("Token refresh failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error refreshing token"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Token refreshed successfully",
		"new_token": user.Token,
	})
}

type verifyParams struct {
	Email string `json:"email" binding:"required"`
	Token string `json:"token" binding:"required"`
}

func (h *Handlers) handleVerify(c *gin.Context) {
	params := &verifyParams{}
	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and token are required"})
		return
	}

	email := models.NormalizeEmail(params.Email)
	if h.attempts.Throttled(email) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many failed attempts, try again later"})
		return
	}

	outcome, err := h.registry.Verify(email, params.Token)
	if err != nil {
		logger.Error().Err(err).Str("email", email).Msg("Verification failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error verifying user"})
		return
	}

	if outcome.Success() {
		h.attempts.Clear(email)
	} else {
		h.attempts.RecordFailure(email)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": outcome.Success(),
		"outcome": outcome,
	})
}

func (h *Handlers) handleDeleteUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	if err := h.registry.Delete(uint(id)); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		logger.Error().Err(err).Uint64("user_id", id).Msg("Delete failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error deleting user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

func (h *Handlers) handleDeleteAll(c *gin.Context) {
	count, err := h.registry.DeleteAll()
	if err != nil {
		logger.Error().Err(err).Msg("Delete all failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error deleting users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "All users deleted",
		"deleted_count": count,
	})
}
