package middleware

import (
	"net/http"
	"strings"

	"consultly/utils"

	"github.com/gin-gonic/gin"
)

// Context keys populated by the auth middleware.
const (
	CtxSubjectID = "subjectID"
	CtxRole      = "role"
)

// JWTAuthMiddleware validates the bearer token and stores subject and role
// in the request context. Token issuance lives in the auth service; this
// only verifies.
func JWTAuthMiddleware(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		subject, role, err := utils.ExtractClaims(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		if len(allowedRoles) > 0 && !roleAllowed(role, allowedRoles) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient role"})
			return
		}

		c.Set(CtxSubjectID, subject)
		c.Set(CtxRole, role)
		c.Next()
	}
}

func roleAllowed(role string, allowed []string) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}
