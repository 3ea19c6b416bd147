package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/murmur-social/murmur-backend/internal/handler"
	"github.com/murmur-social/murmur-backend/internal/middleware"
	"github.com/murmur-social/murmur-backend/pkg/jwt"
)

// Setup configures the DM core API routes. Every route requires a valid
// session token; the DM core never serves anonymous traffic.
func Setup(router *gin.Engine, messages *handler.MessageHandler, groups *handler.GroupHandler, keys *handler.KeyHandler, jwtManager *jwt.Manager) {
	api := router.Group("/api")
	auth := middleware.JWTAuth(jwtManager)

	// Public-key directory
	users := api.Group("/users")
	users.POST("/me/public-key", auth, keys.Publish)
	users.GET("/:id/public-key", auth, keys.Get)

	// Direct messages
	dm := api.Group("/messages")
	dm.Use(auth)
	dm.GET("/unread/count", messages.UnreadCount)
	dm.POST("/:recipientID", messages.Send)
	dm.GET("/:recipientID", messages.GetConversation)
	dm.DELETE("/:id", messages.Delete)

	// Group messages (plaintext only)
	grp := api.Group("/groups")
	grp.Use(auth)
	grp.POST("/:groupID/messages", groups.Send)
	grp.GET("/:groupID/messages", groups.List)
	grp.DELETE("/messages/:id", groups.Delete)
}
