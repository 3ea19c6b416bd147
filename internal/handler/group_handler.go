package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/murmur-social/murmur-backend/internal/common"
	"github.com/murmur-social/murmur-backend/internal/middleware"
	"github.com/murmur-social/murmur-backend/internal/service"
)

// GroupHandler handles group-message API endpoints
type GroupHandler struct {
	messages service.GroupMessageService
}

// NewGroupHandler creates a new GroupHandler
func NewGroupHandler(messages service.GroupMessageService) *GroupHandler {
	return &GroupHandler{messages: messages}
}

// Send handles POST /api/groups/:groupID/messages
// Mirrors the direct-message shape but encryption is refused outright.
func (h *GroupHandler) Send(c *gin.Context) {
	senderID := middleware.GetUserID(c)
	groupID, err := strconv.ParseUint(c.Param("groupID"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid group id", err)
		return
	}

	req := &service.SendGroupMessageRequest{
		Content:     c.PostForm("content"),
		IsEncrypted: c.PostForm("is_encrypted") == "1",
	}
	if v := c.PostForm("expires_in"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds < 0 {
			common.ErrorResponse(c, http.StatusBadRequest, "Invalid expires_in", err)
			return
		}
		req.ExpiresIn = seconds
	}
	if form, err := c.MultipartForm(); err == nil && form != nil {
		req.Attachments = form.File["attachments[]"]
		if len(req.Attachments) == 0 {
			req.Attachments = form.File["attachments"]
		}
	}

	msg, err := h.messages.Send(c.Request.Context(), groupID, senderID, req)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrGroupEncryptionUnsupported):
			common.ErrorResponse(c, http.StatusBadRequest, "Group messages cannot be encrypted", err)
		case errors.Is(err, common.ErrEmptyMessage):
			common.ErrorResponse(c, http.StatusBadRequest, err.Error(), err)
		default:
			common.ErrorResponse(c, http.StatusInternalServerError, "Failed to send group message", err)
		}
		return
	}
	common.CreatedResponse(c, gin.H{"message": msg})
}

// List handles GET /api/groups/:groupID/messages
func (h *GroupHandler) List(c *gin.Context) {
	groupID, err := strconv.ParseUint(c.Param("groupID"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid group id", err)
		return
	}

	messages, err := h.messages.GetGroupMessages(c.Request.Context(), groupID)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to load group messages", err)
		return
	}
	common.SuccessResponse(c, gin.H{"messages": messages}, nil)
}

// Delete handles DELETE /api/groups/messages/:id
func (h *GroupHandler) Delete(c *gin.Context) {
	requesterID := middleware.GetUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid message id", err)
		return
	}

	if err := h.messages.Delete(c.Request.Context(), id, requesterID); err != nil {
		switch {
		case errors.Is(err, common.ErrUnauthorized):
			common.ErrorResponse(c, http.StatusForbidden, "Only the author may delete a group message", err)
		case errors.Is(err, common.ErrMessageNotFound):
			common.ErrorResponse(c, http.StatusNotFound, "Message not found", err)
		default:
			common.ErrorResponse(c, http.StatusInternalServerError, "Failed to delete group message", err)
		}
		return
	}
	c.Status(http.StatusNoContent)
}
