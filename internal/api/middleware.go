package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	msgMissingToken = "Missing authorization token"
	msgBadToken     = "Invalid authorization token"
)

// adminMiddleware пропускает только запросы с заголовком "Authorization: Bearer <AdminToken>".
// Пустой токен отключает проверку.
func (rs *RestServer) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rs.adminToken == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: msgMissingToken})
			return
		}

		// Проверяем формат "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: msgBadToken})
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(rs.adminToken)) != 1 {
			rs.logger.Warn("⛔ Отклонён запрос %s %s: неверный токен", c.Request.Method, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: msgBadToken})
			return
		}

		c.Next()
	}
}
