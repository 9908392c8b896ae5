package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/memento/internal/model"
	"github.com/quocanhngo/memento/pkg/auth"
	"github.com/redis/go-redis/v9"
)

// RevokedTokenPrefix prefixes the Redis keys of revoked token IDs
const RevokedTokenPrefix = "memento:revoked:"

// OperatorAuth requires a bearer token with scope on manual send routes.
// A nil jwtManager disables the check; rdb is optional and enables revocation.
func OperatorAuth(jwtManager *auth.JWTManager, rdb *redis.Client, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtManager == nil {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			abortUnauthorized(c, "Invalid authorization format. Use: Bearer <token>")
			return
		}

		claims, err := jwtManager.ValidateToken(parts[1])
		if err != nil {
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		if rdb != nil && claims.ID != "" {
			exists, err := rdb.Exists(c.Request.Context(), RevokedTokenPrefix+claims.ID).Result()
			if err != nil {
				// fail closed
				c.AbortWithStatusJSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Auth server error"})
				return
			}
			if exists > 0 {
				abortUnauthorized(c, "Token has been revoked")
				return
			}
		}

		if !claims.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, model.ErrorResponse{Error: "Token lacks scope " + scope})
			return
		}

		c.Set("operator", claims.Operator)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{Error: msg})
}
