package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/murmur-social/murmur-backend/internal/common"
	"github.com/murmur-social/murmur-backend/internal/domain"
	"github.com/murmur-social/murmur-backend/internal/middleware"
	"github.com/murmur-social/murmur-backend/internal/service"
)

// KeyHandler handles the public-key directory endpoints
type KeyHandler struct {
	keys service.KeyDirectoryService
}

// NewKeyHandler creates a new KeyHandler
func NewKeyHandler(keys service.KeyDirectoryService) *KeyHandler {
	return &KeyHandler{keys: keys}
}

// Publish handles POST /api/users/me/public-key
// Overwrites any prior key for the authenticated user.
func (h *KeyHandler) Publish(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req domain.PublishKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "public_key is required", err)
		return
	}

	rotated, err := h.keys.SetPublicKey(c.Request.Context(), userID, req.PublicKey)
	if err != nil {
		if errors.Is(err, common.ErrInvalidPublicKey) {
			common.ErrorResponse(c, http.StatusBadRequest, "Invalid public key", err)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to publish public key", err)
		return
	}

	c.JSON(http.StatusOK, domain.PublishKeyResponse{Success: true, Rotated: rotated})
}

// Get handles GET /api/users/:id/public-key
func (h *KeyHandler) Get(c *gin.Context) {
	userID := c.Param("id")

	key, err := h.keys.GetPublicKey(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, common.ErrPublicKeyNotFound) {
			common.ErrorResponse(c, http.StatusNotFound, "No public key published", err)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to look up public key", err)
		return
	}
	common.SuccessResponse(c, gin.H{"public_key": key}, nil)
}
