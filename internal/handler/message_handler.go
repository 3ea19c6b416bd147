package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/murmur-social/murmur-backend/internal/common"
	"github.com/murmur-social/murmur-backend/internal/domain"
	"github.com/murmur-social/murmur-backend/internal/middleware"
	"github.com/murmur-social/murmur-backend/internal/service"
)

// MessageHandler handles direct-message API endpoints
type MessageHandler struct {
	messages service.MessageService
	keys     service.KeyDirectoryService
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(messages service.MessageService, keys service.KeyDirectoryService) *MessageHandler {
	return &MessageHandler{messages: messages, keys: keys}
}

// Send handles POST /api/messages/:recipientID
// Multipart fields: content, is_encrypted ("1"|"0"), client_token,
// expires_in (seconds), attachments[].
func (h *MessageHandler) Send(c *gin.Context) {
	senderID := middleware.GetUserID(c)
	recipientID := c.Param("recipientID")
	if recipientID == "" {
		common.ErrorResponse(c, http.StatusBadRequest, "Recipient is required", nil)
		return
	}

	req := &service.SendMessageRequest{
		Content:     c.PostForm("content"),
		IsEncrypted: c.PostForm("is_encrypted") == "1",
		ClientToken: c.PostForm("client_token"),
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

	msg, created, err := h.messages.Send(c.Request.Context(), senderID, recipientID, req)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrEmptyMessage), errors.Is(err, common.ErrInvalidInput):
			common.ErrorResponse(c, http.StatusBadRequest, err.Error(), err)
		default:
			common.ErrorResponse(c, http.StatusInternalServerError, "Failed to send message", err)
		}
		return
	}

	if !created {
		// Duplicate client token; the original message stands.
		common.SuccessResponse(c, gin.H{"message": msg}, nil)
		return
	}
	common.CreatedResponse(c, gin.H{"message": msg})
}

// GetConversation handles GET /api/messages/:recipientID
// Returns the active window plus the peer's current public key, so
// clients refresh their key cache on every poll.
func (h *MessageHandler) GetConversation(c *gin.Context) {
	userID := middleware.GetUserID(c)
	peerID := c.Param("recipientID")

	messages, err := h.messages.GetConversation(c.Request.Context(), userID, peerID)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to load conversation", err)
		return
	}

	peer := domain.PeerInfo{ID: peerID}
	if key, err := h.keys.GetPublicKey(c.Request.Context(), peerID); err == nil {
		peer.PublicKey = key
	}

	common.SuccessResponse(c, domain.ConversationResponse{
		Messages: messages,
		User:     peer,
	}, nil)
}

// Delete handles DELETE /api/messages/:id
func (h *MessageHandler) Delete(c *gin.Context) {
	requesterID := middleware.GetUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid message id", err)
		return
	}

	if err := h.messages.Delete(c.Request.Context(), id, requesterID); err != nil {
		switch {
		case errors.Is(err, common.ErrUnauthorized):
			common.ErrorResponse(c, http.StatusForbidden, "Only the sender may delete a message", err)
		case errors.Is(err, common.ErrMessageNotFound):
			common.ErrorResponse(c, http.StatusNotFound, "Message not found", err)
		default:
			common.ErrorResponse(c, http.StatusInternalServerError, "Failed to delete message", err)
		}
		return
	}
	c.Status(http.StatusNoContent)
}

// UnreadCount handles GET /api/messages/unread/count
func (h *MessageHandler) UnreadCount(c *gin.Context) {
	userID := middleware.GetUserID(c)

	count, err := h.messages.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to count unread messages", err)
		return
	}
	common.SuccessResponse(c, gin.H{"count": count}, nil)
}
