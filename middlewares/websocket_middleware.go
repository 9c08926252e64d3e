package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-feedback/models"
	"github.com/yeremiapane/restaurant-feedback/services"
)

// WebSocketAuthMiddleware authenticates the upgrade request with ?token=,
// since browsers cannot set headers on a websocket handshake. Admins only.
func WebSocketAuthMiddleware(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.AbortWithStatus(401)
			return
		}

		claims, err := auth.ParseSession(token)
		if err != nil {
			c.AbortWithStatus(401)
			return
		}
		if claims.Role != models.RoleAdmin {
			c.AbortWithStatus(403)
			return
		}

		c.Set("role", claims.Role)
		c.Set("user_id", claims.UserID)

		c.Next()
	}
}
