package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"room-status-backend/internal/model"
	"room-status-backend/internal/policy"
	"room-status-backend/internal/status"
)

// GetRooms handles GET /api/rooms.
func (h *Handler) GetRooms(c *gin.Context) {
	rooms, err := h.engine.ListRooms(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	if rooms == nil {
		rooms = []model.Room{}
	}
	c.JSON(http.StatusOK, rooms)
}

// GetRoom handles GET /api/rooms/:id.
func (h *Handler) GetRoom(c *gin.Context) {
	id, ok := roomIDParam(c)
	if !ok {
		return
	}
	room, err := h.engine.GetRoom(c.Request.Context(), id)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

type createRoomRequest struct {
	Name   string        `json:"name" binding:"required"`
	Status status.Status `json:"status"`
}

// CreateRoom handles POST /api/rooms. The initial status defaults to available.
func (h *Handler) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status == "" {
		req.Status = status.Available
	}

	id, err := h.engine.CreateRoom(c.Request.Context(), req.Name, req.Status)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// DeleteRoom handles DELETE /api/rooms/:id.
func (h *Handler) DeleteRoom(c *gin.Context) {
	id, ok := roomIDParam(c)
	if !ok {
		return
	}
	if err := h.engine.DeleteRoom(c.Request.Context(), id); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetRoomEvents handles GET /api/rooms/:id/events, newest first.
func (h *Handler) GetRoomEvents(c *gin.Context) {
	id, ok := roomIDParam(c)
	if !ok {
		return
	}
	events, err := h.engine.RoomEvents(c.Request.Context(), id)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	if events == nil {
		events = []model.RoomEvent{}
	}
	c.JSON(http.StatusOK, events)
}

type updateStatusRequest struct {
	Status status.Status `json:"status" binding:"required"`
	Source status.Source `json:"source"`
}

// UpdateRoomStatus handles PUT /api/rooms/:id/status. The source defaults to manual.
func (h *Handler) UpdateRoomStatus(c *gin.Context) {
	id, ok := roomIDParam(c)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Source == "" {
		req.Source = status.SourceManual
	}

	ctx := c.Request.Context()
	if err := h.engine.UpdateStatus(ctx, id, req.Status, req.Source); err != nil {
		h.abortWithError(c, err)
		return
	}
	room, err := h.engine.GetRoom(ctx, id)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// GetRoomActions handles GET /api/rooms/:id/actions?role=.
func (h *Handler) GetRoomActions(c *gin.Context) {
	id, ok := roomIDParam(c)
	if !ok {
		return
	}
	role := policy.NormalizeRole(c.Query("role"))
	if !h.engine.Policy().KnownRole(role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	ctx := c.Request.Context()
	room, err := h.engine.GetRoom(ctx, id)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"room_id": room.ID,
		"role":    role,
		"current": room.Status,
		"actions": h.engine.Policy().AllowedTargetsForRole(role, room.Status),
	})
}
