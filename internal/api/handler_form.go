package api

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"room-status-backend/internal/lifecycle"
	"room-status-backend/internal/model"
	"room-status-backend/internal/policy"
	"room-status-backend/internal/status"
)

type formPage struct {
	Room    model.Room
	Role    policy.Role
	Sig     string
	Actions []status.Status
}

type messagePage struct {
	Title  string
	Detail string
}

func message(c *gin.Context, code int, title, detail string) {
	c.HTML(code, "message.html", messagePage{Title: title, Detail: detail})
}

// signedRequest holds the fields every QR link carries.
type signedRequest struct {
	roomID int64
	role   policy.Role
	sig    string
}

// verify parses and checks a signed request, writing the error page itself
// when it fails.
func (h *Handler) verify(c *gin.Context, rawID, rawRole, sig string) (signedRequest, bool) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		message(c, http.StatusBadRequest, "Bad request", "")
		return signedRequest{}, false
	}
	role := policy.NormalizeRole(rawRole)
	if !h.engine.Policy().KnownRole(role) {
		message(c, http.StatusBadRequest, "Invalid role", "")
		return signedRequest{}, false
	}
	if err := h.signer.Verify(id, role, sig); err != nil {
		message(c, http.StatusForbidden, "Invalid signature", "")
		return signedRequest{}, false
	}
	return signedRequest{roomID: id, role: role, sig: sig}, true
}

// GetForm handles GET /form?room_id=&role=&sig= and renders the actions the
// role may take from the room's current status.
func (h *Handler) GetForm(c *gin.Context) {
	req, ok := h.verify(c, c.Query("room_id"), c.Query("role"), c.Query("sig"))
	if !ok {
		return
	}

	room, err := h.engine.GetRoom(c.Request.Context(), req.roomID)
	if err != nil {
		h.formError(c, err)
		return
	}
	c.HTML(http.StatusOK, "form.html", formPage{
		Room:    room,
		Role:    req.role,
		Sig:     req.sig,
		Actions: h.engine.Policy().AllowedTargetsForRole(req.role, room.Status),
	})
}

// PostUpdate handles the form submission on POST /update.
func (h *Handler) PostUpdate(c *gin.Context) {
	req, ok := h.verify(c, c.PostForm("room_id"), c.PostForm("role"), c.PostForm("sig"))
	if !ok {
		return
	}
	next, err := status.Parse(c.PostForm("new_status"))
	if err != nil {
		message(c, http.StatusBadRequest, "Bad request", "")
		return
	}

	ctx := c.Request.Context()
	room, err := h.engine.GetRoom(ctx, req.roomID)
	if err != nil {
		h.formError(c, err)
		return
	}
	allowed := h.engine.Policy().AllowedTargetsForRole(req.role, room.Status)
	if !slices.Contains(allowed, next) {
		message(c, http.StatusBadRequest, "Rejected",
			fmt.Sprintf("%s is not allowed for role %s from %s.", next, req.role, room.Status))
		return
	}

	if err := h.engine.UpdateStatus(ctx, room.ID, next, status.SourceAPI); err != nil {
		h.formError(c, err)
		return
	}
	message(c, http.StatusOK, "Success",
		fmt.Sprintf("Room %s updated to %s at %s.", room.Name, next, time.Now().UTC().Format(time.RFC3339)))
}

func (h *Handler) formError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		message(c, http.StatusNotFound, "Room not found", "")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		message(c, http.StatusBadRequest, "Update failed", err.Error())
	default:
		h.logger.Error("form request failed", zap.Error(err))
		message(c, http.StatusInternalServerError, "Update failed", "")
	}
}
