package auth

import (
	"net/http"
	"strings"

	"github.com/Gamemanuel/BathPass/internal/response"

	"github.com/gin-gonic/gin"
)

// Middleware validates the access token and stores the authenticated
// teacher's ID on the request context.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, response.ErrorResponse{
				Code:    "NO_AUTH_HEADER",
				Message: "Authorization required",
			})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		teacherID, ok := ParseTeacherID(tokenString, AccessSecret)
		if !ok {
			c.JSON(http.StatusUnauthorized, response.ErrorResponse{
				Code:    "INVALID_TOKEN",
				Message: "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set("teacherID", teacherID)
		c.Next()
	}
}
