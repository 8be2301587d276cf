package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sudokim/skku-chat/internal/events"
	"github.com/sudokim/skku-chat/internal/models"
	"github.com/sudokim/skku-chat/internal/repositories"
	"github.com/sudokim/skku-chat/internal/roomsync"
)

// RoomHandler manages room and membership endpoints.
type RoomHandler struct {
	rooms  repositories.RoomRepository
	loader *roomsync.Loader
	hub    *events.Hub
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(rooms repositories.RoomRepository, hub *events.Hub) *RoomHandler {
	return &RoomHandler{
		rooms:  rooms,
		loader: roomsync.NewLoader(rooms),
		hub:    hub,
	}
}

// ListRooms returns the caller's joined rooms with titles and members. A
// room that fails to load carries its error without blocking the others.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	userID := c.GetString("userID")

	rooms, err := h.loader.Load(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// CreateRoom starts a room between the caller and another user.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req struct {
		OtherID string `json:"other_id" binding:"required"`
		Title   string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	if req.OtherID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	title := req.Title
	if title == "" {
		title = userID + ", " + req.OtherID
	}

	room, err := h.rooms.CreateRoom(c.Request.Context(), title, []string{userID, req.OtherID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}

	c.JSON(http.StatusCreated, room)
}

// GetRoom returns one room with its member list.
func (h *RoomHandler) GetRoom(c *gin.Context) {
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

	room, err := h.rooms.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "room not found"})
		return
	}

	members, err := h.rooms.Members(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"room": room, "members": members})
}

// JoinRoom adds the caller to the room and notifies subscribers.
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	roomID := c.Param("room_id")
	userID := c.GetString("userID")

	if _, err := h.rooms.GetRoom(c.Request.Context(), roomID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "room not found"})
		return
	}

	if err := h.rooms.JoinUser(c.Request.Context(), roomID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not join room"})
		return
	}

	h.hub.Publish(models.RoomEvent{RoomID: roomID, Kind: models.EventMemberJoined, Member: userID})
	c.Status(http.StatusNoContent)
}

// LeaveRoom removes the caller from the room and notifies subscribers.
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	roomID := c.Param("room_id")
	userID := c.GetString("userID")

	if err := h.rooms.LeaveUser(c.Request.Context(), roomID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave room"})
		return
	}

	h.hub.Publish(models.RoomEvent{RoomID: roomID, Kind: models.EventMemberLeft, Member: userID})
	c.Status(http.StatusNoContent)
}
