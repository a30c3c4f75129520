// Package api holds the REST control surface: the welcome and room echo
// routes plus the reminder/event routes that front the relational store.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gatherly/videochat/internal/v1/authclient"
	"github.com/gatherly/videochat/internal/v1/eventstore"
	"github.com/gatherly/videochat/internal/v1/logging"
)

// Handler serves the control routes.
type Handler struct {
	store *eventstore.Store
	auth  *authclient.Client
	now   func() time.Time
}

// NewHandler wires the control routes to the event store and auth client.
func NewHandler(store *eventstore.Store, auth *authclient.Client) *Handler {
	return &Handler{store: store, auth: auth, now: time.Now}
}

// Welcome handles GET /.
func (h *Handler) Welcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome to the WebSocket Room API! Connect via React."})
}

// JoinRoom handles GET /room/: a diagnostic echo of the query parameters a
// client would use to open the WebSocket.
func (h *Handler) JoinRoom(c *gin.Context) {
	roomID := c.Query("room_id")
	userID := c.Query("user_id")

	if roomID == "" || userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room ID and User ID are required."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "user_id": userID})
}

// CreateReminderRequest is the POST /reminders payload.
type CreateReminderRequest struct {
	EventID      int64     `json:"event_id" binding:"required"`
	UserEmail    string    `json:"user_email" binding:"required"`
	ReminderTime time.Time `json:"reminder_time" binding:"required"`
}

// CreateReminder handles POST /reminders. The email must belong to a
// registered user, the event must exist, and the reminder time must lie in
// the future.
func (h *Handler) CreateReminder(c *gin.Context) {
	var req CreateReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.validateUser(c, req.UserEmail) {
		return
	}

	if _, err := h.store.Event(c.Request.Context(), req.EventID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		return
	}

	if !req.ReminderTime.UTC().After(h.now().UTC()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Reminder time must be in the future"})
		return
	}

	reminder := &eventstore.Reminder{
		EventID:      req.EventID,
		UserEmail:    req.UserEmail,
		ReminderTime: req.ReminderTime.UTC(),
	}
	id, err := h.store.CreateReminder(c.Request.Context(), reminder)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to create reminder", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create reminder"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":            id,
		"event_id":      reminder.EventID,
		"user_email":    reminder.UserEmail,
		"reminder_time": reminder.ReminderTime.Format(time.RFC3339),
	})
}

// GetEvent handles GET /events/:id?user_email=... — an echo of the stored
// event, gated on the caller being a registered user.
func (h *Handler) GetEvent(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event id must be an integer"})
		return
	}

	email := c.Query("user_email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_email is required"})
		return
	}
	if !h.validateUser(c, email) {
		return
	}

	event, err := h.store.Event(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":              event.ID,
		"title":           event.Title,
		"date":            event.Date.Format(time.RFC3339),
		"description":     event.Description,
		"location":        event.Location,
		"organizer_email": event.OrganizerEmail,
	})
}

// validateUser maps the auth client sentinels onto HTTP statuses. A false
// return means the response has been written.
func (h *Handler) validateUser(c *gin.Context, email string) bool {
	err := h.auth.ValidateUser(c.Request.Context(), email)
	switch {
	case err == nil:
		return true
	case errors.Is(err, authclient.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, authclient.ErrAuthUnavailable):
		logging.Error(c.Request.Context(), "Auth service unavailable",
			zap.String("email", logging.RedactEmail(email)), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Authentication service unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
	return false
}
