package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sudokim/skku-chat/internal/events"
	"github.com/sudokim/skku-chat/internal/models"
	"github.com/sudokim/skku-chat/internal/repositories"
)

// MessageHandler manages room message endpoints.
type MessageHandler struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	hub      *events.Hub
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(rooms repositories.RoomRepository, messages repositories.MessageRepository, hub *events.Hub) *MessageHandler {
	return &MessageHandler{rooms: rooms, messages: messages, hub: hub}
}

// GetMessages returns the ordered history of a room.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	roomID := c.Param("room_id")
	userID := c.GetString("userID")

	member, err := h.rooms.IsMember(c.Request.Context(), roomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	msgs, err := h.messages.ListMessages(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	// Hide soft-deleted payloads; the entries themselves stay visible.
	for i := range msgs {
		if msgs[i].Deleted {
			msgs[i].Text = ""
			msgs[i].BlobPath = ""
		}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage appends a message and notifies subscribers.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	roomID := c.Param("room_id")
	userID := c.GetString("userID")

	member, err := h.rooms.IsMember(c.Request.Context(), roomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	var req struct {
		Text     string `json:"text"`
		BlobPath string `json:"blob_path"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Text == "" && req.BlobPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text or blob_path is required"})
		return
	}

	msg, err := h.messages.AppendMessage(c.Request.Context(), roomID, userID, req.Text, req.BlobPath)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "failed to store message"})
		return
	}

	h.hub.Publish(models.RoomEvent{RoomID: roomID, Kind: models.EventMessageAdded, Message: &msg})
	c.JSON(http.StatusCreated, msg)
}

// DeleteMessage soft-deletes one of the caller's messages and notifies
// subscribers of the change.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	roomID := c.Param("room_id")
	userID := c.GetString("userID")

	seq, err := strconv.ParseInt(c.Param("seq"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message sequence"})
		return
	}

	msg, err := h.messages.SoftDeleteMessage(c.Request.Context(), roomID, seq, userID)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrMessageNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		case errors.Is(err, repositories.ErrNotAuthor):
			c.JSON(http.StatusForbidden, gin.H{"error": "only the author can delete a message"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete message"})
		}
		return
	}

	h.hub.Publish(models.RoomEvent{RoomID: roomID, Kind: models.EventMessageChanged, Message: &msg})
	c.Status(http.StatusNoContent)
}
